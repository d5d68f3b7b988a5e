package camera

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// V4L2 コントロールID (linux/v4l2-controls.h)
const (
	cidAutoWhiteBalance uint32 = 0x0098090c // V4L2_CID_AUTO_WHITE_BALANCE
	cidExposureAuto     uint32 = 0x009a0901 // V4L2_CID_EXPOSURE_AUTO
	cidFocusAuto        uint32 = 0x009a090c // V4L2_CID_FOCUS_AUTO

	exposureAperturePriority int32 = 3 // V4L2_EXPOSURE_APERTURE_PRIORITY

	vidiocSCtrl = 0xc008561c // VIDIOC_S_CTRL = _IOWR('V', 28, struct v4l2_control)
)

// ErrDeviceBusy は他のプロセスがデバイス設定をロック中であることを表す
var ErrDeviceBusy = errors.New("デバイスは設定ロック中です")

// Configurator はデバイス設定のロックを取得する
type Configurator interface {
	// LockForConfiguration はデバイスの設定ロックを取得する
	LockForConfiguration(device *Device) (ConfigLock, error)
}

// ConfigLock はデバイス設定の排他ロック
// Unlock は何度呼んでもよい
type ConfigLock interface {
	SetContinuousAutoFocus() error
	SetContinuousAutoExposure() error
	SetContinuousAutoWhiteBalance() error
	Unlock() error
}

// V4L2Configurator はflockとVIDIOC_S_CTRLでデバイスを設定する
type V4L2Configurator struct{}

// NewV4L2Configurator は新しいV4L2Configuratorを作成する
func NewV4L2Configurator() *V4L2Configurator {
	return &V4L2Configurator{}
}

// LockForConfiguration はデバイスノードを開いて排他flockを取得する
func (c *V4L2Configurator) LockForConfiguration(device *Device) (ConfigLock, error) {
	if device == nil {
		return nil, errors.New("デバイスが指定されていません")
	}

	fd, err := unix.Open(device.Path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("デバイス %s のオープンに失敗: %w", device.Path, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", device.Path, ErrDeviceBusy)
		}
		return nil, fmt.Errorf("デバイス %s のロックに失敗: %w", device.Path, err)
	}

	return &v4l2Lock{fd: fd, path: device.Path}, nil
}

// v4l2Lock はflock済みのファイルディスクリプタを保持する
type v4l2Lock struct {
	fd     int
	path   string
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

// v4l2Control は struct v4l2_control に対応する
type v4l2Control struct {
	ID    uint32
	Value int32
}

func (l *v4l2Lock) setControl(name string, id uint32, value int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%s: ロックは解放済みです", name)
	}

	ctrl := v4l2Control{ID: id, Value: value}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(l.fd), uintptr(vidiocSCtrl), uintptr(unsafe.Pointer(&ctrl)))
	if errno != 0 {
		return fmt.Errorf("%s の設定に失敗 (%s): %w", name, l.path, errno)
	}
	return nil
}

// SetContinuousAutoFocus は連続オートフォーカスを有効にする
func (l *v4l2Lock) SetContinuousAutoFocus() error {
	return l.setControl("focus_automatic_continuous", cidFocusAuto, 1)
}

// SetContinuousAutoExposure は自動露出（絞り優先）を有効にする
func (l *v4l2Lock) SetContinuousAutoExposure() error {
	return l.setControl("auto_exposure", cidExposureAuto, exposureAperturePriority)
}

// SetContinuousAutoWhiteBalance は自動ホワイトバランスを有効にする
func (l *v4l2Lock) SetContinuousAutoWhiteBalance() error {
	return l.setControl("white_balance_automatic", cidAutoWhiteBalance, 1)
}

// Unlock はflockを解除してファイルディスクリプタを閉じる
func (l *v4l2Lock) Unlock() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.closed = true
		if unlockErr := unix.Flock(l.fd, unix.LOCK_UN); unlockErr != nil {
			err = fmt.Errorf("デバイス %s のロック解除に失敗: %w", l.path, unlockErr)
		}
		if closeErr := unix.Close(l.fd); closeErr != nil && err == nil {
			err = fmt.Errorf("デバイス %s のクローズに失敗: %w", l.path, closeErr)
		}
	})
	return err
}

// MockConfigurator はテスト用のConfigurator実装
type MockConfigurator struct {
	LockErr error // LockForConfiguration が返すエラー
	HintErr error // 各ヒントの設定が返すエラー

	mu      sync.Mutex
	locks   int
	unlocks int
	hints   []string
}

// NewMockConfigurator は新しいMockConfiguratorを作成する
func NewMockConfigurator() *MockConfigurator {
	return &MockConfigurator{}
}

// LockForConfiguration はロック回数を記録してモックロックを返す
func (m *MockConfigurator) LockForConfiguration(_ *Device) (ConfigLock, error) {
	if m.LockErr != nil {
		return nil, m.LockErr
	}
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
	return &mockLock{m: m}, nil
}

// Counts はロック取得と解放の回数を返す
func (m *MockConfigurator) Counts() (locks, unlocks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks, m.unlocks
}

// Hints は適用に成功したヒント名を返す
func (m *MockConfigurator) Hints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hints...)
}

type mockLock struct {
	m    *MockConfigurator
	once sync.Once
}

func (l *mockLock) set(name string) error {
	if l.m.HintErr != nil {
		return fmt.Errorf("%s: %w", name, l.m.HintErr)
	}
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.hints = append(l.m.hints, name)
	return nil
}

func (l *mockLock) SetContinuousAutoFocus() error {
	return l.set("focus")
}

func (l *mockLock) SetContinuousAutoExposure() error {
	return l.set("exposure")
}

func (l *mockLock) SetContinuousAutoWhiteBalance() error {
	return l.set("white_balance")
}

func (l *mockLock) Unlock() error {
	l.once.Do(func() {
		l.m.mu.Lock()
		defer l.m.mu.Unlock()
		l.m.unlocks++
	})
	return nil
}
