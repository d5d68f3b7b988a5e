package permission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"camgate/internal/camera"
)

// fakeProbe は設定された認可状態を返す
type fakeProbe struct {
	mu     sync.Mutex
	status camera.Status
	// next が空でなければ先頭から順に返す
	next  []camera.Status
	calls int
}

func newFakeProbe(status camera.Status) *fakeProbe {
	return &fakeProbe{status: status}
}

func (p *fakeProbe) AuthorizationStatus(context.Context) camera.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.next) > 0 {
		s := p.next[0]
		p.next = p.next[1:]
		return s
	}
	return p.status
}

func (p *fakeProbe) DefaultDevice(context.Context) (*camera.Device, bool) {
	return nil, false
}

func (p *fakeProbe) set(status camera.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// blockingPrompter は release が閉じるまで応答しないプロンプト
type blockingPrompter struct {
	probe   *fakeProbe
	grant   bool
	release chan struct{}
	calls   atomic.Int32
}

func (p *blockingPrompter) RequestAccess(context.Context) bool {
	p.calls.Add(1)
	<-p.release
	if p.grant {
		p.probe.set(camera.StatusAuthorized)
	} else {
		p.probe.set(camera.StatusDenied)
	}
	return p.grant
}

type countingWarmer struct {
	calls atomic.Int32
}

func (w *countingWarmer) Warm() {
	w.calls.Add(1)
}

func failingPrompter(t *testing.T) Prompter {
	return PrompterFunc(func(context.Context) bool {
		t.Error("プロンプトが出されました")
		return false
	})
}

func TestGate_CheckHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	statuses := []camera.Status{
		camera.StatusAuthorized,
		camera.StatusDenied,
		camera.StatusRestricted,
		camera.StatusNotDetermined,
		camera.StatusUnknown,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			warmer := &countingWarmer{}
			gate := NewGate(newFakeProbe(status), failingPrompter(t), warmer, zerolog.Nop())

			for i := 0; i < 10; i++ {
				assert.Equal(t, status, gate.Check(ctx))
			}
			assert.Equal(t, PromptIdle, gate.PromptState())
			assert.Zero(t, gate.PromptsIssued())
			assert.Zero(t, warmer.calls.Load())
		})
	}
}

func TestGate_CheckAuthorizedRepeatedly(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(newFakeProbe(camera.StatusAuthorized), failingPrompter(t), nil, zerolog.Nop())

	trues := 0
	for i := 0; i < 100; i++ {
		if gate.Check(ctx).Permits() {
			trues++
		}
	}
	assert.Equal(t, 100, trues)
	assert.Zero(t, gate.PromptsIssued())
}

func TestGate_RequestResolvedFromStatus(t *testing.T) {
	testCases := []struct {
		status camera.Status
		want   bool
	}{
		{camera.StatusAuthorized, true},
		{camera.StatusDenied, false},
		{camera.StatusRestricted, false},
		{camera.StatusUnknown, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			warmer := &countingWarmer{}
			gate := NewGate(newFakeProbe(tc.status), failingPrompter(t), warmer, zerolog.Nop())

			assert.Equal(t, tc.want, gate.Request(context.Background()))
			assert.Equal(t, PromptIdle, gate.PromptState())
			assert.Zero(t, gate.PromptsIssued())
			assert.Zero(t, warmer.calls.Load(), "状態から解決した場合はウォームアップしない")
		})
	}
}

func TestGate_RequestGrantTriggersOneWarmup(t *testing.T) {
	defer goleak.VerifyNone(t)

	probe := newFakeProbe(camera.StatusNotDetermined)
	prompter := &blockingPrompter{probe: probe, grant: true, release: make(chan struct{})}
	warmer := &countingWarmer{}
	gate := NewGate(probe, prompter, warmer, zerolog.Nop())

	result := make(chan bool, 1)
	go func() { result <- gate.Request(context.Background()) }()

	require.Eventually(t, func() bool {
		return gate.PromptState() == PromptInFlight
	}, 2*time.Second, 5*time.Millisecond)

	close(prompter.release)

	select {
	case granted := <-result:
		assert.True(t, granted)
	case <-time.After(2 * time.Second):
		t.Fatal("Request が解決しませんでした")
	}

	assert.Equal(t, PromptIdle, gate.PromptState())
	assert.Equal(t, 1, gate.PromptsIssued())
	assert.Equal(t, int32(1), prompter.calls.Load())
	assert.Equal(t, int32(1), warmer.calls.Load())

	// 許可後は状態から解決し、再度ウォームアップしない
	assert.True(t, gate.Request(context.Background()))
	assert.Equal(t, int32(1), warmer.calls.Load())
}

func TestGate_RequestDenialTriggersNoWarmup(t *testing.T) {
	probe := newFakeProbe(camera.StatusNotDetermined)
	prompter := &blockingPrompter{probe: probe, grant: false, release: make(chan struct{})}
	close(prompter.release)
	warmer := &countingWarmer{}
	gate := NewGate(probe, prompter, warmer, zerolog.Nop())

	assert.False(t, gate.Request(context.Background()))
	assert.Zero(t, warmer.calls.Load())
	assert.Equal(t, 1, gate.PromptsIssued())

	// 拒否後は自動で再プロンプトしない
	assert.False(t, gate.Request(context.Background()))
	assert.Equal(t, 1, gate.PromptsIssued())
}

func TestGate_ConcurrentRequestsShareOnePrompt(t *testing.T) {
	defer goleak.VerifyNone(t)

	probe := newFakeProbe(camera.StatusNotDetermined)
	prompter := &blockingPrompter{probe: probe, grant: true, release: make(chan struct{})}
	warmer := &countingWarmer{}
	gate := NewGate(probe, prompter, warmer, zerolog.Nop())

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- gate.Request(context.Background())
		}()
	}

	require.Eventually(t, func() bool {
		return gate.PromptState() == PromptInFlight
	}, 2*time.Second, 5*time.Millisecond)
	// 表示中に他の呼び出しが合流する時間を与える
	time.Sleep(50 * time.Millisecond)
	close(prompter.release)

	wg.Wait()
	close(results)

	for granted := range results {
		assert.True(t, granted)
	}
	assert.Equal(t, int32(1), prompter.calls.Load())
	assert.Equal(t, 1, gate.PromptsIssued())
	assert.Equal(t, int32(1), warmer.calls.Load())
}

func TestGate_FlightRechecksStatus(t *testing.T) {
	probe := newFakeProbe(camera.StatusAuthorized)
	// 外側の確認では未確認、フライト内の再確認では許可済み
	probe.next = []camera.Status{camera.StatusNotDetermined, camera.StatusAuthorized}
	warmer := &countingWarmer{}
	gate := NewGate(probe, failingPrompter(t), warmer, zerolog.Nop())

	assert.True(t, gate.Request(context.Background()))
	assert.Zero(t, gate.PromptsIssued())
	assert.Zero(t, warmer.calls.Load())
}

func TestGate_CancelledCallerStillResolves(t *testing.T) {
	probe := newFakeProbe(camera.StatusNotDetermined)
	var seen context.Context
	prompter := PrompterFunc(func(ctx context.Context) bool {
		seen = ctx
		probe.set(camera.StatusAuthorized)
		return true
	})
	gate := NewGate(probe, prompter, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, gate.Request(ctx))
	require.NotNil(t, seen)
	assert.NoError(t, seen.Err(), "プロンプトは呼び出し元のキャンセルを引き継がない")
}
