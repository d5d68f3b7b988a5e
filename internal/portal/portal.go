// Package portal はxdg-desktop-portalを使ってデスクトップ環境のカメラ許可を扱う
//
// 認可状態は PermissionStore の devices/camera テーブルから読み、
// 許可プロンプトは org.freedesktop.portal.Camera.AccessCamera で表示する。
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"camgate/internal/camera"
)

const (
	portalDest      = "org.freedesktop.portal.Desktop"
	portalPath      = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	cameraInterface = "org.freedesktop.portal.Camera"
	requestIface    = "org.freedesktop.portal.Request"
	requestPrefix   = "/org/freedesktop/portal/desktop/request/"

	storeDest      = "org.freedesktop.impl.portal.PermissionStore"
	storePath      = dbus.ObjectPath("/org/freedesktop/impl/portal/PermissionStore")
	storeInterface = "org.freedesktop.impl.portal.PermissionStore"
	storeTable     = "devices"
	storeID        = "camera"

	errNotFound = "org.freedesktop.portal.Error.NotFound"

	// DefaultPromptTimeout はユーザーの応答を待つ時間の上限
	DefaultPromptTimeout = 2 * time.Minute
)

// busConn は Portal が使うバス接続の操作。*dbus.Conn が満たす
type busConn interface {
	Names() []string
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

// Portal はセッションバス上のデスクトップポータルへの接続
type Portal struct {
	conn    busConn
	appID   string
	timeout time.Duration
	logger  zerolog.Logger
}

// Option は Portal の設定を変更する
type Option func(*Portal)

// WithAppID は PermissionStore で参照するアプリケーションIDを指定する
// サンドボックス外のプロセスは空文字列で登録される
func WithAppID(appID string) Option {
	return func(p *Portal) {
		p.appID = appID
	}
}

// WithPromptTimeout はプロンプトの応答待ち時間を変更する
func WithPromptTimeout(d time.Duration) Option {
	return func(p *Portal) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Connect はセッションバスに接続して Portal を作成する
func Connect(logger zerolog.Logger, opts ...Option) (*Portal, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("セッションバスへの接続に失敗: %w", err)
	}
	return New(conn, logger, opts...), nil
}

// New は既存の接続から Portal を作成する
func New(conn *dbus.Conn, logger zerolog.Logger, opts ...Option) *Portal {
	return newPortal(conn, logger, opts...)
}

func newPortal(conn busConn, logger zerolog.Logger, opts ...Option) *Portal {
	p := &Portal{
		conn:    conn,
		timeout: DefaultPromptTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close はバス接続を閉じる
func (p *Portal) Close() error {
	return p.conn.Close()
}

// AuthorizationStatus は PermissionStore に記録された許可状態を返す
// テーブルやエントリが無い場合はまだ尋ねていないものとして扱う
func (p *Portal) AuthorizationStatus(ctx context.Context) (camera.Status, error) {
	var (
		perms map[string][]string
		data  dbus.Variant
	)

	obj := p.conn.Object(storeDest, storePath)
	err := obj.CallWithContext(ctx, storeInterface+".Lookup", 0, storeTable, storeID).Store(&perms, &data)
	if err != nil {
		if isNotFound(err) {
			return camera.StatusNotDetermined, nil
		}
		return camera.StatusUnknown, fmt.Errorf("PermissionStore の参照に失敗: %w", err)
	}
	return statusFromPermissions(perms, p.appID), nil
}

// IsCameraPresent はポータルがカメラを検出しているかを返す
func (p *Portal) IsCameraPresent(ctx context.Context) (bool, error) {
	var present bool
	obj := p.conn.Object(portalDest, portalPath)
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, cameraInterface, "IsCameraPresent").Store(&present)
	if err != nil {
		return false, fmt.Errorf("IsCameraPresent の取得に失敗: %w", err)
	}
	return present, nil
}

// RequestAccess は許可プロンプトを表示してユーザーの応答を待つ
// 失敗、取り消し、タイムアウトはいずれも false を返す
func (p *Portal) RequestAccess(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	names := p.conn.Names()
	if len(names) == 0 {
		p.logger.Warn().Msg("バス上の一意名が取得できません")
		return false
	}

	token := handleToken()
	predicted := requestPath(names[0], token)

	signals := make(chan *dbus.Signal, 8)
	p.conn.Signal(signals)
	defer p.conn.RemoveSignal(signals)

	// 応答を取りこぼさないよう、呼び出し前に購読しておく
	if err := p.watch(predicted); err != nil {
		p.logger.Warn().Err(err).Msg("Response シグナルの購読に失敗")
		return false
	}
	defer p.unwatch(predicted)

	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
	}
	var handle dbus.ObjectPath
	obj := p.conn.Object(portalDest, portalPath)
	if err := obj.CallWithContext(ctx, cameraInterface+".AccessCamera", 0, options).Store(&handle); err != nil {
		p.logger.Warn().Err(err).Msg("AccessCamera の呼び出しに失敗")
		return false
	}

	// 古いポータルは予測と異なるパスを返す
	if handle != predicted {
		if err := p.watch(handle); err != nil {
			p.logger.Warn().Err(err).Str("handle", string(handle)).Msg("Response シグナルの購読に失敗")
			return false
		}
		defer p.unwatch(handle)
	}

	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return false
			}
			if sig.Path != handle || sig.Name != requestIface+".Response" {
				continue
			}
			granted := responseGranted(sig.Body)
			p.logger.Debug().Bool("granted", granted).Str("handle", string(handle)).Msg("ポータルが応答しました")
			return granted
		case <-ctx.Done():
			p.logger.Warn().Err(ctx.Err()).Msg("許可プロンプトが時間内に応答しませんでした")
			p.closeRequest(handle)
			return false
		}
	}
}

func (p *Portal) watch(path dbus.ObjectPath) error {
	return p.conn.AddMatchSignal(matchOptions(path)...)
}

func (p *Portal) unwatch(path dbus.ObjectPath) {
	if err := p.conn.RemoveMatchSignal(matchOptions(path)...); err != nil {
		p.logger.Debug().Err(err).Msg("シグナル購読の解除に失敗")
	}
}

// closeRequest は応答待ちのリクエストを取り消してダイアログを閉じる
func (p *Portal) closeRequest(handle dbus.ObjectPath) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if call := p.conn.Object(portalDest, handle).CallWithContext(ctx, requestIface+".Close", 0); call.Err != nil {
		p.logger.Debug().Err(call.Err).Msg("リクエストの取り消しに失敗")
	}
}

func matchOptions(path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
	}
}

// statusFromPermissions は devices/camera テーブルの内容を認可状態に変換する
func statusFromPermissions(perms map[string][]string, appID string) camera.Status {
	entry, ok := perms[appID]
	if !ok || len(entry) == 0 {
		return camera.StatusNotDetermined
	}

	switch entry[0] {
	case "yes":
		return camera.StatusAuthorized
	case "no":
		return camera.StatusDenied
	case "ask":
		return camera.StatusNotDetermined
	default:
		return camera.StatusUnknown
	}
}

// requestPath はポータルが作成するRequestオブジェクトのパスを組み立てる
// 一意名 ":1.42" は "1_42" になる
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(requestPrefix + sender + "/" + token)
}

// handleToken はオブジェクトパスに使える一意なトークンを作る
func handleToken() string {
	return "camgate_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// responseGranted は Response シグナルの応答コードが許可を表すかを返す
// 0: 許可, 1: ユーザーが取り消し, 2: その他
func responseGranted(body []any) bool {
	if len(body) == 0 {
		return false
	}
	code, ok := body[0].(uint32)
	return ok && code == 0
}

func isNotFound(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == errNotFound
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == errNotFound
	}
	return false
}
