package capture

import (
	"errors"
	"sync"

	"camgate/internal/camera"
)

// MockFactory はテスト用のSessionFactory実装
// 各フィールドで失敗させる段階を指定できる
type MockFactory struct {
	SessionErr   error // NewSession が返すエラー
	InputErr     error // NewInput が返すエラー
	OutputErr    error // NewOutput が返すエラー
	StartErr     error // Start が返すエラー
	RejectInput  bool  // CanAddInput を false にする
	RejectOutput bool  // CanAddOutput を false にする

	mu       sync.Mutex
	sessions []*MockSession
	inputs   []*MockInput
}

// NewMockFactory は新しいMockFactoryを作成する
func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

// NewSession はモックセッションを作成する
func (f *MockFactory) NewSession(preset Preset) (Session, error) {
	if f.SessionErr != nil {
		return nil, f.SessionErr
	}

	s := &MockSession{factory: f, Preset: preset}
	_ = s.tracker.set(StateConfiguring)

	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// NewInput はモック入力を作成する
func (f *MockFactory) NewInput(device *camera.Device) (Input, error) {
	if f.InputErr != nil {
		return nil, f.InputErr
	}

	in := &MockInput{device: device}
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	return in, nil
}

// NewOutput はモック出力を作成する
func (f *MockFactory) NewOutput() (Output, error) {
	if f.OutputErr != nil {
		return nil, f.OutputErr
	}
	return mockOutput{}, nil
}

// Sessions は作成されたセッション一覧を返す
func (f *MockFactory) Sessions() []*MockSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockSession(nil), f.sessions...)
}

// Inputs は作成された入力一覧を返す
func (f *MockFactory) Inputs() []*MockInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockInput(nil), f.inputs...)
}

// MockInput はテスト用の入力
type MockInput struct {
	device *camera.Device
	mu     sync.Mutex
	closed bool
}

// Device は入力元デバイスを返す
func (i *MockInput) Device() *camera.Device {
	return i.device
}

// Close は入力を解放済みにする
func (i *MockInput) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}

// Closed は Close が呼ばれたかを返す
func (i *MockInput) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

type mockOutput struct{}

func (mockOutput) Kind() string {
	return "mock"
}

// MockSession はテスト用のセッション
type MockSession struct {
	Preset Preset

	factory *MockFactory
	mu      sync.Mutex
	tracker stateTracker
	input   Input
	output  Output
	starts  int
	stops   int
}

func (s *MockSession) CanAddInput(in Input) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.factory.RejectInput && s.input == nil && s.tracker.get() == StateConfiguring
}

func (s *MockSession) AddInput(in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input != nil {
		return errors.New("入力は追加済みです")
	}
	s.input = in
	return nil
}

func (s *MockSession) CanAddOutput(out Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.factory.RejectOutput && s.output == nil && s.tracker.get() == StateConfiguring
}

func (s *MockSession) AddOutput(out Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output != nil {
		return errors.New("出力は追加済みです")
	}
	s.output = out
	return nil
}

func (s *MockSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.starts++
	if s.input == nil || s.output == nil {
		return ErrNotConfigured
	}
	if s.factory.StartErr != nil {
		_ = s.tracker.set(StateFailed)
		return s.factory.StartErr
	}
	return s.tracker.set(StateRunning)
}

func (s *MockSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stops++
	switch s.tracker.get() {
	case StateStopped, StateFailed:
		return nil
	case StateRunning:
		return s.tracker.set(StateStopped)
	default:
		return s.tracker.set(StateFailed)
	}
}

func (s *MockSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.get()
}

// Starts は Start の呼び出し回数を返す
func (s *MockSession) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Stops は Stop の呼び出し回数を返す
func (s *MockSession) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
