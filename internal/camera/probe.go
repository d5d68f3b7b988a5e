package camera

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// DefaultProbe は Discovery と Authorizer を組み合わせた Probe 実装
type DefaultProbe struct {
	discovery  Discovery
	authorizer Authorizer
	logger     zerolog.Logger
}

// NewProbe は新しい DefaultProbe を作成する
func NewProbe(discovery Discovery, authorizer Authorizer, logger zerolog.Logger) *DefaultProbe {
	return &DefaultProbe{
		discovery:  discovery,
		authorizer: authorizer,
		logger:     logger,
	}
}

// AuthorizationStatus は現在の認可状態を返す
func (p *DefaultProbe) AuthorizationStatus(ctx context.Context) Status {
	status, err := p.authorizer.AuthorizationStatus(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("認可状態の取得に失敗、unknownとして扱います")
		return StatusUnknown
	}
	return ParseStatus(string(status))
}

// DefaultDevice は番号が最も小さいメインカメラを返す
func (p *DefaultProbe) DefaultDevice(ctx context.Context) (*Device, bool) {
	devices, err := p.discovery.ScanDevices(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("デバイスのスキャンに失敗")
		return nil, false
	}
	if len(devices) == 0 {
		return nil, false
	}

	path := devices[0]
	device := &Device{Path: path, Name: filepath.Base(path)}
	if info, err := p.discovery.GetDeviceInfo(ctx, path); err == nil {
		device.Name = info.Name
		device.Driver = info.Driver
		p.logger.Debug().
			Str("device", path).
			Strs("formats", info.Formats).
			Int("resolutions", len(info.Resolutions)).
			Msg("既定のデバイスを選択しました")
	}
	return device, true
}

// StaticAuthorizer は固定の認可状態を返す
type StaticAuthorizer struct {
	Status Status
}

// AuthorizationStatus は設定された状態を返す
func (a StaticAuthorizer) AuthorizationStatus(_ context.Context) (Status, error) {
	return a.Status, nil
}

// GroupAuthorizer はデバイスノードへのアクセス権とグループ所属で認可状態を判定する
// プロンプトを出せない環境向けで、NotDetermined は返さない
type GroupAuthorizer struct {
	group     string
	discovery Discovery
	uid       func() int
	gids      func() ([]int, error)
	access    func(path string, mode uint32) error
}

// NewGroupAuthorizer は新しい GroupAuthorizer を作成する
// group が空の場合は "video" を使う。discovery が nil の場合はグループ所属だけで判定する
func NewGroupAuthorizer(group string, discovery Discovery) *GroupAuthorizer {
	if group == "" {
		group = "video"
	}
	return &GroupAuthorizer{
		group:     group,
		discovery: discovery,
		uid:       os.Getuid,
		gids:      os.Getgroups,
		access:    unix.Access,
	}
}

// AuthorizationStatus は次の順で判定する
//   - rootなら Authorized
//   - 既定のデバイスノードを読み書きできれば Authorized (systemd-logind の uaccess ACL など)
//   - グループメンバーなら Authorized、それ以外は Restricted
func (a *GroupAuthorizer) AuthorizationStatus(ctx context.Context) (Status, error) {
	if a.uid() == 0 {
		return StatusAuthorized, nil
	}

	if path, ok := a.defaultNode(ctx); ok {
		if err := a.access(path, unix.R_OK|unix.W_OK); err == nil {
			return StatusAuthorized, nil
		}
	}

	g, err := user.LookupGroup(a.group)
	if err != nil {
		return StatusUnknown, fmt.Errorf("グループ %s の検索に失敗: %w", a.group, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return StatusUnknown, fmt.Errorf("無効なグループID: %s", g.Gid)
	}

	gids, err := a.gids()
	if err != nil {
		return StatusUnknown, fmt.Errorf("所属グループの取得に失敗: %w", err)
	}
	if slices.Contains(gids, gid) {
		return StatusAuthorized, nil
	}
	return StatusRestricted, nil
}

// defaultNode は判定に使うデバイスノードを返す
func (a *GroupAuthorizer) defaultNode(ctx context.Context) (string, bool) {
	if a.discovery == nil {
		return "", false
	}
	devices, err := a.discovery.ScanDevices(ctx)
	if err != nil || len(devices) == 0 {
		return "", false
	}
	return devices[0], true
}
