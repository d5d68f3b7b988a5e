package portal

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"

	"camgate/internal/camera"
)

func TestStatusFromPermissions(t *testing.T) {
	testCases := []struct {
		name  string
		perms map[string][]string
		appID string
		want  camera.Status
	}{
		{"許可", map[string][]string{"": {"yes"}}, "", camera.StatusAuthorized},
		{"拒否", map[string][]string{"": {"no"}}, "", camera.StatusDenied},
		{"確認が必要", map[string][]string{"": {"ask"}}, "", camera.StatusNotDetermined},
		{"エントリなし", map[string][]string{"org.example.Other": {"yes"}}, "", camera.StatusNotDetermined},
		{"空のエントリ", map[string][]string{"": {}}, "", camera.StatusNotDetermined},
		{"テーブルが空", nil, "", camera.StatusNotDetermined},
		{"未知の値", map[string][]string{"": {"maybe"}}, "", camera.StatusUnknown},
		{"アプリIDで参照", map[string][]string{"com.demo.app": {"no"}, "": {"yes"}}, "com.demo.app", camera.StatusDenied},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFromPermissions(tc.perms, tc.appID))
		})
	}
}

func TestRequestPath(t *testing.T) {
	got := requestPath(":1.42", "camgate_abc")
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/camgate_abc"), got)
	assert.True(t, got.IsValid())
}

func TestHandleToken(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	a, b := handleToken(), handleToken()
	assert.Regexp(t, valid, a)
	assert.NotEqual(t, a, b)
	assert.True(t, requestPath(":1.7", a).IsValid())
}

func TestResponseGranted(t *testing.T) {
	results := map[string]dbus.Variant{}

	testCases := []struct {
		name string
		body []any
		want bool
	}{
		{"許可", []any{uint32(0), results}, true},
		{"取り消し", []any{uint32(1), results}, false},
		{"その他", []any{uint32(2), results}, false},
		{"本体なし", nil, false},
		{"型が違う", []any{"0"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, responseGranted(tc.body))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := dbus.Error{Name: errNotFound}
	other := dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}

	assert.True(t, isNotFound(notFound))
	assert.True(t, isNotFound(&notFound))
	assert.True(t, isNotFound(fmt.Errorf("lookup: %w", notFound)))
	assert.False(t, isNotFound(other))
	assert.False(t, isNotFound(fmt.Errorf("接続が切れました")))
}
