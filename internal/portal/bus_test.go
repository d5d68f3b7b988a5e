package portal

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camgate/internal/camera"
)

// busCall は fakeBus が受けたメソッド呼び出し
type busCall struct {
	dest   string
	path   dbus.ObjectPath
	method string
	args   []any
}

// fakeBus はセッションバスの代わりに呼び出しを記録し、handler で応答する
type fakeBus struct {
	mu      sync.Mutex
	names   []string
	signals []chan<- *dbus.Signal
	matches [][]dbus.MatchOption
	added   [][]dbus.MatchOption
	calls   []busCall
	closed  bool
	handler func(call busCall) *dbus.Call
}

func newFakeBus(handler func(call busCall) *dbus.Call) *fakeBus {
	return &fakeBus{names: []string{":1.42"}, handler: handler}
}

func (b *fakeBus) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.names
}

func (b *fakeBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, ch)
}

func (b *fakeBus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.signals {
		if c == ch {
			b.signals = append(b.signals[:i], b.signals[i+1:]...)
			return
		}
	}
}

func (b *fakeBus) AddMatchSignal(options ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches = append(b.matches, options)
	b.added = append(b.added, options)
	return nil
}

func (b *fakeBus) RemoveMatchSignal(options ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.matches {
		if reflect.DeepEqual(m, options) {
			b.matches = append(b.matches[:i], b.matches[i+1:]...)
			return nil
		}
	}
	return errors.New("購読されていません")
}

func (b *fakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return &fakeObject{bus: b, dest: dest, path: path}
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) call(c busCall) *dbus.Call {
	b.mu.Lock()
	b.calls = append(b.calls, c)
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		return &dbus.Call{}
	}
	if reply := handler(c); reply != nil {
		return reply
	}
	return &dbus.Call{}
}

// emit は登録済みの受信チャンネルへシグナルを届ける
func (b *fakeBus) emit(path dbus.ObjectPath, code uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sig := &dbus.Signal{
		Sender: ":1.7",
		Path:   path,
		Name:   requestIface + ".Response",
		Body:   []any{code, map[string]dbus.Variant{}},
	}
	for _, ch := range b.signals {
		select {
		case ch <- sig:
		default:
		}
	}
}

// watching は path の Response シグナルを購読中かを返す
func (b *fakeBus) watching(path dbus.ObjectPath) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return containsMatch(b.matches, path)
}

// everWatched は path の Response シグナルを一度でも購読したかを返す
func (b *fakeBus) everWatched(path dbus.ObjectPath) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return containsMatch(b.added, path)
}

func (b *fakeBus) receivers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signals)
}

func (b *fakeBus) callsTo(method string) []busCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var found []busCall
	for _, c := range b.calls {
		if c.method == method {
			found = append(found, c)
		}
	}
	return found
}

func containsMatch(matches [][]dbus.MatchOption, path dbus.ObjectPath) bool {
	want := matchOptions(path)
	for _, m := range matches {
		if reflect.DeepEqual(m, want) {
			return true
		}
	}
	return false
}

type fakeObject struct {
	bus  *fakeBus
	dest string
	path dbus.ObjectPath
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...any) *dbus.Call {
	return o.CallWithContext(context.Background(), method, flags, args...)
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...any) *dbus.Call {
	return o.bus.call(busCall{dest: o.dest, path: o.path, method: method, args: args})
}

func (o *fakeObject) Go(string, dbus.Flags, chan *dbus.Call, ...any) *dbus.Call {
	return &dbus.Call{Err: errors.New("非同期呼び出しは未対応")}
}

func (o *fakeObject) GoWithContext(context.Context, string, dbus.Flags, chan *dbus.Call, ...any) *dbus.Call {
	return &dbus.Call{Err: errors.New("非同期呼び出しは未対応")}
}

func (o *fakeObject) AddMatchSignal(string, string, ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeObject) RemoveMatchSignal(string, string, ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeObject) GetProperty(string) (dbus.Variant, error) {
	return dbus.Variant{}, errors.New("未対応")
}

func (o *fakeObject) StoreProperty(string, any) error {
	return errors.New("未対応")
}

func (o *fakeObject) SetProperty(string, any) error {
	return errors.New("未対応")
}

func (o *fakeObject) Destination() string { return o.dest }

func (o *fakeObject) Path() dbus.ObjectPath { return o.path }

// predictedHandle は AccessCamera の引数から予測されるRequestパスを求める
func predictedHandle(t *testing.T, b *fakeBus, call busCall) dbus.ObjectPath {
	t.Helper()
	if !assert.Len(t, call.args, 1) {
		return ""
	}
	options, ok := call.args[0].(map[string]dbus.Variant)
	if !assert.True(t, ok, "AccessCamera のオプションの型") {
		return ""
	}
	token, ok := options["handle_token"].Value().(string)
	assert.True(t, ok, "handle_token が指定されていない")
	return requestPath(b.Names()[0], token)
}

func TestPortal_AuthorizationStatus(t *testing.T) {
	testCases := []struct {
		name    string
		reply   *dbus.Call
		want    camera.Status
		wantErr bool
	}{
		{
			name:  "許可済み",
			reply: &dbus.Call{Body: []any{map[string][]string{"": {"yes"}}, dbus.MakeVariant(uint8(0))}},
			want:  camera.StatusAuthorized,
		},
		{
			name:  "拒否",
			reply: &dbus.Call{Body: []any{map[string][]string{"": {"no"}}, dbus.MakeVariant(uint8(0))}},
			want:  camera.StatusDenied,
		},
		{
			name:  "テーブルが無い",
			reply: &dbus.Call{Err: dbus.Error{Name: errNotFound}},
			want:  camera.StatusNotDetermined,
		},
		{
			name:  "テーブルが無い（ポインタ）",
			reply: &dbus.Call{Err: &dbus.Error{Name: errNotFound}},
			want:  camera.StatusNotDetermined,
		},
		{
			name:    "PermissionStore が無い",
			reply:   &dbus.Call{Err: dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}},
			want:    camera.StatusUnknown,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := newFakeBus(func(busCall) *dbus.Call { return tc.reply })
			p := newPortal(bus, zerolog.Nop())

			status, err := p.AuthorizationStatus(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, status)

			calls := bus.callsTo(storeInterface + ".Lookup")
			require.Len(t, calls, 1)
			assert.Equal(t, storeDest, calls[0].dest)
			assert.Equal(t, storePath, calls[0].path)
			assert.Equal(t, []any{storeTable, storeID}, calls[0].args)
			assert.Empty(t, bus.callsTo(cameraInterface+".AccessCamera"), "状態の取得でプロンプトを出さない")
		})
	}
}

func TestPortal_IsCameraPresent(t *testing.T) {
	bus := newFakeBus(func(call busCall) *dbus.Call {
		return &dbus.Call{Body: []any{dbus.MakeVariant(true)}}
	})
	p := newPortal(bus, zerolog.Nop())

	present, err := p.IsCameraPresent(context.Background())
	require.NoError(t, err)
	assert.True(t, present)

	calls := bus.callsTo("org.freedesktop.DBus.Properties.Get")
	require.Len(t, calls, 1)
	assert.Equal(t, []any{cameraInterface, "IsCameraPresent"}, calls[0].args)
}

func TestPortal_RequestAccessResponses(t *testing.T) {
	testCases := []struct {
		name string
		code uint32
		want bool
	}{
		{"許可", 0, true},
		{"ユーザーが取り消し", 1, false},
		{"その他の理由で終了", 2, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var bus *fakeBus
			subscribed := false
			bus = newFakeBus(func(call busCall) *dbus.Call {
				if call.method != cameraInterface+".AccessCamera" {
					return nil
				}
				handle := predictedHandle(t, bus, call)
				subscribed = bus.watching(handle) && bus.receivers() == 1
				// 呼び出しが戻る前に応答が届く場合
				bus.emit(handle, tc.code)
				return &dbus.Call{Body: []any{handle}}
			})
			p := newPortal(bus, zerolog.Nop())

			assert.Equal(t, tc.want, p.RequestAccess(context.Background()))
			assert.True(t, subscribed, "AccessCamera の前に購読している")
			assert.Empty(t, bus.callsTo(requestIface+".Close"))
			assert.Zero(t, bus.receivers(), "終了後は受信を解除する")
			assert.Empty(t, bus.matches, "終了後は購読を解除する")
		})
	}
}

func TestPortal_RequestAccessTimeout(t *testing.T) {
	var (
		bus    *fakeBus
		handle dbus.ObjectPath
	)
	bus = newFakeBus(func(call busCall) *dbus.Call {
		if call.method != cameraInterface+".AccessCamera" {
			return nil
		}
		handle = predictedHandle(t, bus, call)
		return &dbus.Call{Body: []any{handle}}
	})
	p := newPortal(bus, zerolog.Nop(), WithPromptTimeout(20*time.Millisecond))

	start := time.Now()
	assert.False(t, p.RequestAccess(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	closes := bus.callsTo(requestIface + ".Close")
	require.Len(t, closes, 1, "応答待ちのリクエストを取り消す")
	assert.Equal(t, portalDest, closes[0].dest)
	assert.Equal(t, handle, closes[0].path)
	assert.Empty(t, bus.matches)
}

func TestPortal_RequestAccessCallerCancel(t *testing.T) {
	var bus *fakeBus
	bus = newFakeBus(func(call busCall) *dbus.Call {
		if call.method != cameraInterface+".AccessCamera" {
			return nil
		}
		return &dbus.Call{Body: []any{predictedHandle(t, bus, call)}}
	})
	p := newPortal(bus, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, p.RequestAccess(ctx))
	assert.Len(t, bus.callsTo(requestIface+".Close"), 1)
}

func TestPortal_RequestAccessUnexpectedHandle(t *testing.T) {
	const legacy = dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/legacy")

	var (
		bus       *fakeBus
		predicted dbus.ObjectPath
	)
	bus = newFakeBus(func(call busCall) *dbus.Call {
		if call.method != cameraInterface+".AccessCamera" {
			return nil
		}
		predicted = predictedHandle(t, bus, call)
		// 予測したパスへの応答は無視される
		bus.emit(predicted, 1)
		return &dbus.Call{Body: []any{legacy}}
	})
	p := newPortal(bus, zerolog.Nop(), WithPromptTimeout(time.Second))

	done := make(chan bool, 1)
	go func() { done <- p.RequestAccess(context.Background()) }()

	require.Eventually(t, func() bool { return bus.watching(legacy) }, time.Second, time.Millisecond)
	bus.emit(legacy, 0)

	select {
	case granted := <-done:
		assert.True(t, granted)
	case <-time.After(2 * time.Second):
		t.Fatal("RequestAccess が戻りませんでした")
	}
	assert.True(t, bus.everWatched(predicted))
	assert.True(t, bus.everWatched(legacy))
	assert.Empty(t, bus.matches)
}

func TestPortal_RequestAccessFailures(t *testing.T) {
	t.Run("一意名が無い", func(t *testing.T) {
		bus := newFakeBus(nil)
		bus.names = nil
		p := newPortal(bus, zerolog.Nop())

		assert.False(t, p.RequestAccess(context.Background()))
		assert.Empty(t, bus.calls)
	})

	t.Run("AccessCamera が失敗", func(t *testing.T) {
		bus := newFakeBus(func(call busCall) *dbus.Call {
			return &dbus.Call{Err: dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}}
		})
		p := newPortal(bus, zerolog.Nop())

		assert.False(t, p.RequestAccess(context.Background()))
		assert.Empty(t, bus.callsTo(requestIface+".Close"))
		assert.Empty(t, bus.matches)
		assert.Zero(t, bus.receivers())
	})
}

func TestPortal_Close(t *testing.T) {
	bus := newFakeBus(nil)
	p := newPortal(bus, zerolog.Nop())
	require.NoError(t, p.Close())
	assert.True(t, bus.closed)
}
