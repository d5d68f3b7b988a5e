package camera

import (
	"context"
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type errAuthorizer struct{}

func (errAuthorizer) AuthorizationStatus(context.Context) (Status, error) {
	return "", errors.New("bus unavailable")
}

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		in   string
		want Status
	}{
		{"authorized", StatusAuthorized},
		{"denied", StatusDenied},
		{"restricted", StatusRestricted},
		{"not_determined", StatusNotDetermined},
		{"limited", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ParseStatus(tc.in), "input %q", tc.in)
	}
}

func TestStatusPermits(t *testing.T) {
	assert.True(t, StatusAuthorized.Permits())
	for _, s := range []Status{StatusDenied, StatusRestricted, StatusNotDetermined, StatusUnknown} {
		assert.False(t, s.Permits(), "status %s", s)
	}
}

func TestDefaultProbe_AuthorizationStatus(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	probe := NewProbe(NewMockDiscovery(), StaticAuthorizer{Status: StatusDenied}, logger)
	assert.Equal(t, StatusDenied, probe.AuthorizationStatus(ctx))

	// プラットフォームの未知の値は Unknown に落とす
	probe = NewProbe(NewMockDiscovery(), StaticAuthorizer{Status: Status("provisional")}, logger)
	assert.Equal(t, StatusUnknown, probe.AuthorizationStatus(ctx))

	probe = NewProbe(NewMockDiscovery(), errAuthorizer{}, logger)
	assert.Equal(t, StatusUnknown, probe.AuthorizationStatus(ctx))
}

func TestDefaultProbe_DefaultDevice(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery()
	probe := NewProbe(discovery, StaticAuthorizer{Status: StatusAuthorized}, zerolog.Nop())

	device, ok := probe.DefaultDevice(ctx)
	assert.False(t, ok)
	assert.Nil(t, device)

	discovery.AddDevice("/dev/video0")
	discovery.AddDevice("/dev/video2")

	device, ok = probe.DefaultDevice(ctx)
	require.True(t, ok)
	assert.Equal(t, "/dev/video0", device.Path)
	assert.Equal(t, "テストカメラ 1", device.Name)
	assert.Equal(t, "mock", device.Driver)
}

func TestGroupAuthorizer(t *testing.T) {
	ctx := context.Background()

	root := NewGroupAuthorizer("", nil)
	root.uid = func() int { return 0 }
	status, err := root.AuthorizationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, status)

	missing := NewGroupAuthorizer("camgate-group-that-does-not-exist", nil)
	missing.uid = func() int { return 1000 }
	status, err = missing.AuthorizationStatus(ctx)
	assert.Error(t, err)
	assert.Equal(t, StatusUnknown, status)
}

func TestGroupAuthorizer_DeviceAccess(t *testing.T) {
	ctx := context.Background()

	primary, err := user.LookupGroupId(strconv.Itoa(os.Getgid()))
	require.NoError(t, err)
	gid := os.Getgid()

	testCases := []struct {
		name      string
		devices   []string
		accessErr error
		gids      []int
		want      Status
		checked   string
	}{
		{"ACLで読み書きできる", []string{"/dev/video0"}, nil, nil, StatusAuthorized, "/dev/video0"},
		{"アクセスできずグループ所属あり", []string{"/dev/video0"}, unix.EACCES, []int{gid}, StatusAuthorized, "/dev/video0"},
		{"アクセスできずグループ所属なし", []string{"/dev/video0"}, unix.EACCES, nil, StatusRestricted, "/dev/video0"},
		{"デバイスなしでグループ所属あり", nil, nil, []int{gid}, StatusAuthorized, ""},
		{"デバイスなしでグループ所属なし", nil, nil, nil, StatusRestricted, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var checked string
			var mode uint32
			a := NewGroupAuthorizer(primary.Name, NewMockDiscovery(tc.devices...))
			a.uid = func() int { return 1000 }
			a.gids = func() ([]int, error) { return tc.gids, nil }
			a.access = func(path string, m uint32) error {
				checked, mode = path, m
				return tc.accessErr
			}

			status, err := a.AuthorizationStatus(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, status)
			assert.Equal(t, tc.checked, checked)
			if tc.checked != "" {
				assert.Equal(t, uint32(unix.R_OK|unix.W_OK), mode)
			}
		})
	}
}

func TestGroupAuthorizer_RealNode(t *testing.T) {
	node := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(node, nil, 0o600))

	a := NewGroupAuthorizer("camgate-group-that-does-not-exist", NewMockDiscovery(node))
	a.uid = func() int { return 1000 }

	status, err := a.AuthorizationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, status, "所有者は読み書きできる")
}
