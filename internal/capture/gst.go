package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"camgate/internal/camera"
)

var gstInit sync.Once

// GstFactory はGStreamerでセッションを組み立てる SessionFactory
//
// パイプライン構成:
//
//	v4l2src device=<path> → capsfilter(preset) → fakesink
type GstFactory struct {
	source         string
	deviceProperty string
}

// GstOption は GstFactory の設定を変更する
type GstOption func(*GstFactory)

// WithSource は入力に使うエレメントを変更する
// deviceProperty が空の場合はデバイスパスを設定しない
func WithSource(element, deviceProperty string) GstOption {
	return func(f *GstFactory) {
		f.source = element
		f.deviceProperty = deviceProperty
	}
}

// NewGstFactory は新しいGstFactoryを作成する
func NewGstFactory(opts ...GstOption) *GstFactory {
	gstInit.Do(func() {
		gst.Init(nil)
	})
	f := &GstFactory{
		source:         "v4l2src",
		deviceProperty: "device",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewSession は空のパイプラインとプリセットのcapsfilterを作成する
func (f *GstFactory) NewSession(preset Preset) (Session, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("パイプラインの作成に失敗: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("capsfilterの作成に失敗: %w", err)
	}
	// MJPEGのみのカメラでもネゴシエーションできるようにraw/jpegの両方を許す
	caps := fmt.Sprintf("video/x-raw,width=%d,height=%d;image/jpeg,width=%d,height=%d",
		preset.Width, preset.Height, preset.Width, preset.Height)
	if err := capsfilter.SetProperty("caps", gst.NewCapsFromString(caps)); err != nil {
		return nil, fmt.Errorf("capsの設定に失敗: %w", err)
	}
	if err := pipeline.Add(capsfilter); err != nil {
		return nil, fmt.Errorf("capsfilterの追加に失敗: %w", err)
	}

	s := &gstSession{
		pipeline:   pipeline,
		setState:   pipeline.SetState,
		capsfilter: capsfilter,
	}
	if err := s.tracker.set(StateConfiguring); err != nil {
		return nil, err
	}
	return s, nil
}

// NewInput は入力エレメントを作成し、READY状態にしてデバイスを開く
// デバイスが使用中、権限が無い場合などはここで失敗する
func (f *GstFactory) NewInput(device *camera.Device) (Input, error) {
	if device == nil {
		return nil, errors.New("デバイスが指定されていません")
	}

	src, err := gst.NewElement(f.source)
	if err != nil {
		return nil, fmt.Errorf("%sの作成に失敗: %w", f.source, err)
	}
	if f.deviceProperty != "" {
		if err := src.SetProperty(f.deviceProperty, device.Path); err != nil {
			return nil, fmt.Errorf("デバイスパスの設定に失敗: %w", err)
		}
	}
	if err := src.SetState(gst.StateReady); err != nil {
		_ = src.SetState(gst.StateNull)
		return nil, fmt.Errorf("デバイス %s を開けません: %w", device.Path, err)
	}

	return &gstInput{device: device, src: src}, nil
}

// NewOutput はフレームを捨てるfakesinkを作成する
func (f *GstFactory) NewOutput() (Output, error) {
	sink, err := gst.NewElement("fakesink")
	if err != nil {
		return nil, fmt.Errorf("fakesinkの作成に失敗: %w", err)
	}
	if err := sink.SetProperty("sync", false); err != nil {
		return nil, fmt.Errorf("fakesinkの設定に失敗: %w", err)
	}
	return &gstOutput{sink: sink}, nil
}

type gstInput struct {
	device *camera.Device
	src    *gst.Element
	once   sync.Once
}

func (i *gstInput) Device() *camera.Device {
	return i.device
}

func (i *gstInput) Close() error {
	var err error
	i.once.Do(func() {
		err = i.src.SetState(gst.StateNull)
	})
	return err
}

type gstOutput struct {
	sink *gst.Element
}

func (o *gstOutput) Kind() string {
	return "fakesink"
}

// gstSession はGStreamerパイプラインによる Session 実装
type gstSession struct {
	mu         sync.Mutex
	tracker    stateTracker
	pipeline   *gst.Pipeline
	setState   func(gst.State) error
	capsfilter *gst.Element
	input      *gstInput
	output     *gstOutput
}

func (s *gstSession) CanAddInput(in Input) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := in.(*gstInput)
	return ok && s.input == nil && s.tracker.get() == StateConfiguring
}

func (s *gstSession) AddInput(in Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	input, ok := in.(*gstInput)
	if !ok || s.input != nil || s.tracker.get() != StateConfiguring {
		return errors.New("入力を追加できません")
	}
	if err := s.pipeline.Add(input.src); err != nil {
		return fmt.Errorf("入力エレメントの追加に失敗: %w", err)
	}
	if err := input.src.Link(s.capsfilter); err != nil {
		return fmt.Errorf("入力エレメントのリンクに失敗: %w", err)
	}
	s.input = input
	return nil
}

func (s *gstSession) CanAddOutput(out Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := out.(*gstOutput)
	return ok && s.output == nil && s.tracker.get() == StateConfiguring
}

func (s *gstSession) AddOutput(out Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	output, ok := out.(*gstOutput)
	if !ok || s.output != nil || s.tracker.get() != StateConfiguring {
		return errors.New("出力を追加できません")
	}
	if err := s.pipeline.Add(output.sink); err != nil {
		return fmt.Errorf("fakesinkの追加に失敗: %w", err)
	}
	if err := s.capsfilter.Link(output.sink); err != nil {
		return fmt.Errorf("fakesinkのリンクに失敗: %w", err)
	}
	s.output = output
	return nil
}

func (s *gstSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input == nil || s.output == nil {
		return ErrNotConfigured
	}
	if err := s.setState(gst.StatePlaying); err != nil {
		_ = s.setState(gst.StateNull)
		_ = s.tracker.set(StateFailed)
		return fmt.Errorf("パイプラインの開始に失敗: %w", err)
	}
	return s.tracker.set(StateRunning)
}

func (s *gstSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.tracker.get() {
	case StateStopped, StateFailed:
		return nil
	case StateRunning:
		// 停止に失敗した場合も停止済みとする
		err := s.setState(gst.StateNull)
		_ = s.tracker.set(StateStopped)
		if err != nil {
			return fmt.Errorf("パイプラインの停止に失敗: %w", err)
		}
		return nil
	default:
		// 開始前の破棄
		err := s.setState(gst.StateNull)
		_ = s.tracker.set(StateFailed)
		return err
	}
}

func (s *gstSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.get()
}
