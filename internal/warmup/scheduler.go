// Package warmup は許可後にキャプチャパイプラインを短時間動かして初回起動の遅延を隠す
//
// ウォームアップは投げっぱなしで、結果を呼び出し元に返さない。
// 失敗は途中の段階で打ち切ってログに残すだけで、動作中のセッションを残さない。
// テストと状態表示のために、各実行の結果は Report として内部に記録する。
package warmup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"camgate/internal/camera"
	"camgate/internal/capture"
	"camgate/internal/metrics"
)

// DefaultLifetime はセッションを開始してから停止するまでの時間
const DefaultLifetime = time.Second

// Outcome はウォームアップ一回分の結果
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"          // 開始して予定どおり停止した
	OutcomeNoDevice         Outcome = "no_device"          // デバイスが無い
	OutcomeSessionFailed    Outcome = "session_failed"     // セッションを作れない
	OutcomeInputFailed      Outcome = "input_failed"       // デバイス入力を作れない
	OutcomeInputRejected    Outcome = "input_rejected"     // セッションが入力を受け付けない
	OutcomeOutputFailed     Outcome = "output_failed"      // 出力を作れない
	OutcomeOutputRejected   Outcome = "output_rejected"    // セッションが出力を受け付けない
	OutcomeConfigLockFailed Outcome = "config_lock_failed" // デバイス設定ロックを取れない
	OutcomeStartFailed      Outcome = "start_failed"       // セッションを開始できない
)

// Report はウォームアップ一回分の記録
type Report struct {
	ID         string               `json:"id"`
	Device     string               `json:"device,omitempty"`
	Outcome    Outcome              `json:"outcome"`
	Error      string               `json:"error,omitempty"`
	HintErrors []string             `json:"hint_errors,omitempty"` // 設定ヒントの失敗（中断はしない）
	State      capture.SessionState `json:"state,omitempty"`       // 最終的なセッション状態
	StartedAt  time.Time            `json:"started_at"`
	RunningAt  time.Time            `json:"running_at,omitzero"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Deferrer は遅延タスクをプライマリ実行コンテキストで実行する
type Deferrer interface {
	AfterFunc(d time.Duration, fn func())
}

// Scheduler はバックグラウンドでウォームアップを実行する
type Scheduler struct {
	probe        camera.Probe
	factory      capture.SessionFactory
	configurator camera.Configurator
	deferrer     Deferrer
	logger       zerolog.Logger
	lifetime     time.Duration
	hook         func(Report)

	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *Report
	closed bool // Wait 以降は新しいウォームアップを受け付けない
}

// Option は Scheduler の設定を変更する
type Option func(*Scheduler)

// WithLifetime はセッションの動作時間を変更する
func WithLifetime(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithReportHook は各ウォームアップの終了時に呼ばれる関数を登録する
func WithReportHook(hook func(Report)) Option {
	return func(s *Scheduler) {
		s.hook = hook
	}
}

// New は新しいSchedulerを作成する
func New(
	probe camera.Probe,
	factory capture.SessionFactory,
	configurator camera.Configurator,
	deferrer Deferrer,
	logger zerolog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		probe:        probe,
		factory:      factory,
		configurator: configurator,
		deferrer:     deferrer,
		logger:       logger,
		lifetime:     DefaultLifetime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Warm はウォームアップをバックグラウンドで開始してすぐに戻る
// Wait が呼ばれた後は何もしない
func (s *Scheduler) Warm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Debug().Msg("停止処理中のためウォームアップを行いません")
		return
	}
	s.wg.Add(1)
	go s.run(context.Background())
}

// Wait は新しいウォームアップの受け付けを止め、
// 実行中のものが遅延停止まで含めて全て終わるのを待つ
func (s *Scheduler) Wait() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Last は最後に終了したウォームアップの記録を返す
func (s *Scheduler) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// attempt は一回分の実行状態
type attempt struct {
	report  Report
	logger  zerolog.Logger
	session capture.Session
	input   capture.Input
}

func (s *Scheduler) run(ctx context.Context) {
	a := &attempt{report: Report{ID: uuid.NewString(), StartedAt: time.Now()}}
	a.logger = s.logger.With().Str("warmup_id", a.report.ID).Logger()
	a.logger.Debug().Msg("キャプチャセッションのウォームアップを開始します")

	outcome, err := s.prepare(ctx, a)
	if outcome != "" {
		s.abandon(a)
		s.finish(a, outcome, err)
		return
	}

	a.report.RunningAt = time.Now()
	a.logger.Debug().Dur("lifetime", s.lifetime).Msg("セッションを開始しました")

	s.deferrer.AfterFunc(s.lifetime, func() {
		s.stop(a)
		s.finish(a, OutcomeCompleted, nil)
	})
}

// prepare はデバイスの取得からセッション開始までを行う
// 途中で打ち切った場合は空でない Outcome を返す
func (s *Scheduler) prepare(ctx context.Context, a *attempt) (Outcome, error) {
	device, ok := s.probe.DefaultDevice(ctx)
	if !ok {
		return OutcomeNoDevice, nil
	}
	a.report.Device = device.Path
	a.logger = a.logger.With().Str("device", device.Path).Logger()

	session, err := s.factory.NewSession(capture.PresetHigh)
	if err != nil {
		return OutcomeSessionFailed, err
	}
	a.session = session

	input, err := s.factory.NewInput(device)
	if err != nil {
		return OutcomeInputFailed, err
	}
	a.input = input

	if !session.CanAddInput(input) {
		return OutcomeInputRejected, nil
	}
	if err := session.AddInput(input); err != nil {
		return OutcomeInputRejected, err
	}

	output, err := s.factory.NewOutput()
	if err != nil {
		return OutcomeOutputFailed, err
	}
	if !session.CanAddOutput(output) {
		return OutcomeOutputRejected, nil
	}
	if err := session.AddOutput(output); err != nil {
		return OutcomeOutputRejected, err
	}

	hintErrs, err := s.configure(device)
	if err != nil {
		return OutcomeConfigLockFailed, err
	}
	for _, hintErr := range hintErrs {
		a.report.HintErrors = append(a.report.HintErrors, hintErr.Error())
		a.logger.Warn().Err(hintErr).Msg("デバイス設定の一部を適用できませんでした")
	}

	if err := session.Start(); err != nil {
		return OutcomeStartFailed, err
	}
	return "", nil
}

// configure は設定ロックを取得して三つのヒントを設定する
// ロックはどの経路で抜けても解放する
func (s *Scheduler) configure(device *camera.Device) (hintErrs []error, err error) {
	lock, err := s.configurator.LockForConfiguration(device)
	if err != nil {
		return nil, err
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			s.logger.Warn().Err(unlockErr).Str("device", device.Path).Msg("設定ロックの解放に失敗")
		}
	}()

	hints := []func() error{
		lock.SetContinuousAutoFocus,
		lock.SetContinuousAutoExposure,
		lock.SetContinuousAutoWhiteBalance,
	}
	for _, set := range hints {
		if err := set(); err != nil {
			hintErrs = append(hintErrs, err)
		}
	}
	return hintErrs, nil
}

// abandon は途中まで作ったセッションと入力を解放する
func (s *Scheduler) abandon(a *attempt) {
	if a.session != nil {
		if err := a.session.Stop(); err != nil {
			a.logger.Warn().Err(err).Msg("セッションの破棄に失敗")
		}
	}
	if a.input != nil {
		if err := a.input.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("デバイス入力の解放に失敗")
		}
	}
}

// stop は動作中のセッションを停止する
func (s *Scheduler) stop(a *attempt) {
	if err := a.session.Stop(); err != nil {
		a.logger.Warn().Err(err).Msg("セッションの停止に失敗")
	}
	if err := a.input.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("デバイス入力の解放に失敗")
	}
}

func (s *Scheduler) finish(a *attempt, outcome Outcome, err error) {
	defer s.wg.Done()

	a.report.Outcome = outcome
	a.report.FinishedAt = time.Now()
	if err != nil {
		a.report.Error = err.Error()
	}
	if a.session != nil {
		a.report.State = a.session.State()
	}

	metrics.WarmupOutcomesTotal.WithLabelValues(string(outcome)).Inc()

	event := a.logger.Info()
	if outcome != OutcomeCompleted {
		event = a.logger.Warn().Err(err)
	}
	event.Str("outcome", string(outcome)).
		Dur("elapsed", a.report.FinishedAt.Sub(a.report.StartedAt)).
		Msg("キャプチャセッションのウォームアップが終了しました")

	report := a.report
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	if s.hook != nil {
		s.hook(report)
	}
}
