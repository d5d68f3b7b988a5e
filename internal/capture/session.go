// Package capture はウォームアップ用の一時的なキャプチャセッションを表す
package capture

import (
	"errors"
	"fmt"

	"camgate/internal/camera"
)

// SessionState はキャプチャセッションの状態
type SessionState string

const (
	StateIdle        SessionState = "idle"        // 作成直後
	StateConfiguring SessionState = "configuring" // 入出力を構成中
	StateRunning     SessionState = "running"     // 動作中
	StateStopped     SessionState = "stopped"     // 停止済み
	StateFailed      SessionState = "failed"      // 構成に失敗
)

// Preset はセッションの品質プリセット
type Preset struct {
	Name   string
	Width  int
	Height int
}

// PresetHigh は高品質プリセット
var PresetHigh = Preset{Name: "high", Width: 1280, Height: 720}

// ErrNotConfigured は入力または出力が無い状態で Start したことを表す
var ErrNotConfigured = errors.New("セッションの入出力が構成されていません")

// Input はデバイス入力
type Input interface {
	Device() *camera.Device
	// Close はセッションに追加されなかった入力のデバイスを解放する。何度呼んでもよい
	Close() error
}

// Output はセッションの出力
type Output interface {
	Kind() string
}

// Session はデバイス入力と出力をつなぐ実行時オブジェクト
type Session interface {
	CanAddInput(in Input) bool
	AddInput(in Input) error
	CanAddOutput(out Output) bool
	AddOutput(out Output) error
	Start() error
	// Stop はセッションを停止してリソースを解放する。何度呼んでもよい
	// 開始前に呼んだ場合は構成を破棄して StateFailed になる
	Stop() error
	State() SessionState
}

// SessionFactory はセッションと入出力を作成する
type SessionFactory interface {
	NewSession(preset Preset) (Session, error)
	NewInput(device *camera.Device) (Input, error)
	NewOutput() (Output, error)
}

// transition は許可された状態遷移かどうかを確認する
func transition(from, to SessionState) error {
	allowed := map[SessionState][]SessionState{
		StateIdle:        {StateConfiguring, StateFailed},
		StateConfiguring: {StateConfiguring, StateRunning, StateFailed},
		StateRunning:     {StateStopped},
	}
	for _, next := range allowed[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("無効な状態遷移: %s -> %s", from, to)
}

// stateTracker はセッション状態を遷移表に従って更新する
type stateTracker struct {
	state SessionState
}

func (t *stateTracker) set(to SessionState) error {
	if t.state == "" {
		t.state = StateIdle
	}
	if err := transition(t.state, to); err != nil {
		return err
	}
	t.state = to
	return nil
}

func (t *stateTracker) get() SessionState {
	if t.state == "" {
		return StateIdle
	}
	return t.state
}
