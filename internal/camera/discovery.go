package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	deviceNumberPattern = regexp.MustCompile(`video(\d+)$`)
	formatPattern       = regexp.MustCompile(`\[\d+\]:\s*'([^']+)'`)
	discreteSizePattern = regexp.MustCompile(`Size:\s*Discrete\s+(\d+)x(\d+)`)
	rangeSizePattern    = regexp.MustCompile(`Size:\s*(?:Stepwise|Continuous)\s+\d+x\d+\s*-\s*(\d+)x(\d+)`)
)

// CommandRunner は外部コマンドを実行して標準出力を返す
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner は exec.CommandContext を使う CommandRunner
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// LinuxDiscovery はLinux環境でのV4L2デバイス検出を実装する
type LinuxDiscovery struct {
	pattern string
	run     CommandRunner
}

// DiscoveryOption は LinuxDiscovery の設定を変更する
type DiscoveryOption func(*LinuxDiscovery)

// WithDevicePattern は検索するデバイスのglobパターンを指定する
func WithDevicePattern(pattern string) DiscoveryOption {
	return func(d *LinuxDiscovery) {
		d.pattern = pattern
	}
}

// WithCommandRunner はv4l2-ctlの実行方法を差し替える
func WithCommandRunner(run CommandRunner) DiscoveryOption {
	return func(d *LinuxDiscovery) {
		d.run = run
	}
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery(opts ...DiscoveryOption) *LinuxDiscovery {
	d := &LinuxDiscovery{
		pattern: "/dev/video*",
		run:     execRunner,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScanDevices はシステム内の利用可能なカメラデバイスを番号順にスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if d.IsDeviceAvailable(ctx, match) && d.isMainCamera(ctx, match, devices) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが存在し、V4L2ノードの名前を持つかチェックする
// 読み取り権限の有無は認可状態の扱いなのでここでは見ない
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	info, err := os.Stat(device)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return deviceNumberPattern.MatchString(filepath.Base(device))
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	fields := d.v4l2Info(ctx, device)

	name := fields["Card type"]
	if name == "" {
		name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
	}
	driver := fields["Driver name"]
	if driver == "" {
		driver = "uvcvideo"
	}

	result := &DeviceInfo{
		Device: device,
		Name:   name,
		Driver: driver,
	}
	// 取得できない場合は空のまま返す
	if output, err := d.listFormats(ctx, device); err == nil {
		result.Formats, result.Resolutions = parseFormats(string(output))
	}
	return result, nil
}

// listFormats は v4l2-ctl --list-formats-ext の出力を返す
func (d *LinuxDiscovery) listFormats(ctx context.Context, device string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.run(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
}

// parseFormats は --list-formats-ext の出力からピクセルフォーマットと解像度を取り出す
// 解像度は重複を除いて画素数の小さい順に並べる。Stepwise/Continuous は上限だけを使う
func parseFormats(output string) ([]string, []Resolution) {
	var formats []string
	for _, m := range formatPattern.FindAllStringSubmatch(output, -1) {
		if !slices.Contains(formats, m[1]) {
			formats = append(formats, m[1])
		}
	}

	var resolutions []Resolution
	add := func(m []string) {
		w, errW := strconv.Atoi(m[1])
		h, errH := strconv.Atoi(m[2])
		if errW != nil || errH != nil {
			return
		}
		r := Resolution{Width: w, Height: h}
		if !slices.Contains(resolutions, r) {
			resolutions = append(resolutions, r)
		}
	}
	for _, m := range discreteSizePattern.FindAllStringSubmatch(output, -1) {
		add(m)
	}
	for _, m := range rangeSizePattern.FindAllStringSubmatch(output, -1) {
		add(m)
	}
	sort.Slice(resolutions, func(i, j int) bool {
		a, b := resolutions[i], resolutions[j]
		if a.Width*a.Height != b.Width*b.Height {
			return a.Width*a.Height < b.Width*b.Height
		}
		return a.Width < b.Width
	})
	return formats, resolutions
}

// v4l2Info は v4l2-ctl --info の "key : value" 行を読み取る
func (d *LinuxDiscovery) v4l2Info(ctx context.Context, device string) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields := make(map[string]string)
	output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--info")
	if err != nil {
		return fields
	}

	for _, line := range strings.Split(string(output), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, exists := fields[key]; exists {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// isMainCamera はデバイスがカラー映像を出すメインノードかどうかを判定する
// 同じカメラの複数ノードは番号の小さいものだけを残す
func (d *LinuxDiscovery) isMainCamera(ctx context.Context, device string, accepted []string) bool {
	output, err := d.listFormats(ctx, device)
	if err != nil {
		// v4l2-utils が無い環境ではフォーマットを確認できないので候補として残す
		return errors.Is(err, exec.ErrNotFound)
	}

	formats, _ := parseFormats(string(output))
	hasColor := slices.Contains(formats, "YUYV") || slices.Contains(formats, "MJPG")
	if !hasColor {
		return false
	}

	name := d.v4l2Info(ctx, device)["Card type"]
	if name == "" {
		return true
	}
	for _, other := range accepted {
		if d.v4l2Info(ctx, other)["Card type"] == name {
			return false
		}
	}
	return true
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu          sync.RWMutex
	devices     []string
	deviceInfos map[string]*DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices ...string) *MockDiscovery {
	m := &MockDiscovery{deviceInfos: make(map[string]*DeviceInfo)}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.devices...), nil
}

// IsDeviceAvailable はモックデバイスが登録済みかチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.deviceInfos[device]
	return exists
}

// GetDeviceInfo はモックデバイス情報のコピーを返す
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}
	result := *info
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deviceInfos[device]; exists {
		return
	}
	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device:      device,
		Name:        fmt.Sprintf("テストカメラ %d", len(m.devices)),
		Driver:      "mock",
		Resolutions: []Resolution{{Width: 1280, Height: 720}},
		Formats:     []string{"MJPG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}
