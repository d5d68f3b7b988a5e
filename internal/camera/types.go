package camera

import (
	"context"
)

// Status はカメラアクセスの認可状態を表す
type Status string

const (
	StatusAuthorized    Status = "authorized"     // アクセス許可済み
	StatusDenied        Status = "denied"         // ユーザーが拒否
	StatusRestricted    Status = "restricted"     // ポリシーにより制限
	StatusNotDetermined Status = "not_determined" // まだ確認していない
	StatusUnknown       Status = "unknown"        // プラットフォームが未知の値を返した
)

// Permits はアクセスを許可してよい状態かどうかを返す
// Unknown は Denied と同じ扱いになる
func (s Status) Permits() bool {
	return s == StatusAuthorized
}

// ParseStatus は文字列を Status に変換する
// 未知の値は StatusUnknown になる
func ParseStatus(value string) Status {
	switch Status(value) {
	case StatusAuthorized, StatusDenied, StatusRestricted, StatusNotDetermined:
		return Status(value)
	default:
		return StatusUnknown
	}
}

// Device はデフォルトの映像キャプチャデバイスを表す
type Device struct {
	Path   string // デバイスパス（例: /dev/video0）
	Name   string // デバイスの表示名
	Driver string // ドライバー名
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device      string       // デバイスパス
	Name        string       // デバイス名
	Driver      string       // ドライバー名
	Resolutions []Resolution // サポートされる解像度
	Formats     []string     // サポートされるフォーマット
}

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// Authorizer はプラットフォームの認可状態を読み取る
type Authorizer interface {
	// AuthorizationStatus は現在の認可状態を返す
	AuthorizationStatus(ctx context.Context) (Status, error)
}

// Probe はデバイスと認可状態を問い合わせる
// 状態は持たず、呼び出しごとに毎回問い合わせる
type Probe interface {
	// AuthorizationStatus は現在の認可状態を返す
	// 取得に失敗した場合は StatusUnknown を返す
	AuthorizationStatus(ctx context.Context) Status

	// DefaultDevice はデフォルトの映像キャプチャデバイスを返す
	// デバイスが無い場合は (nil, false) を返す
	DefaultDevice(ctx context.Context) (*Device, bool)
}
