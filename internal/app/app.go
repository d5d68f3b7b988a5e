// Package app は設定から各コンポーネントを組み立てて起動する
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"camgate/internal/camera"
	"camgate/internal/capture"
	"camgate/internal/channel"
	"camgate/internal/config"
	"camgate/internal/logging"
	"camgate/internal/mainloop"
	"camgate/internal/permission"
	"camgate/internal/portal"
	"camgate/internal/server"
	"camgate/internal/warmup"
)

// App はcamgateのプロセス全体
type App struct {
	cfg        *config.Config
	logger     zerolog.Logger
	loop       *mainloop.Loop
	probe      camera.Probe
	gate       *permission.Gate
	scheduler  *warmup.Scheduler
	dispatcher *channel.Dispatcher
	server     *server.Server
	closers    []func() error
}

type options struct {
	discovery    camera.Discovery
	authorizer   camera.Authorizer
	prompter     permission.Prompter
	factory      capture.SessionFactory
	configurator camera.Configurator
	reportHook   func(warmup.Report)
}

// Option は App の依存を差し替える
type Option func(*options)

// WithDiscovery はデバイス検出を差し替える
func WithDiscovery(d camera.Discovery) Option {
	return func(o *options) { o.discovery = d }
}

// WithAuthority は認可状態の取得とプロンプトを差し替える
func WithAuthority(authorizer camera.Authorizer, prompter permission.Prompter) Option {
	return func(o *options) {
		o.authorizer = authorizer
		o.prompter = prompter
	}
}

// WithCapture はキャプチャセッションとデバイス設定を差し替える
func WithCapture(factory capture.SessionFactory, configurator camera.Configurator) Option {
	return func(o *options) {
		o.factory = factory
		o.configurator = configurator
	}
}

// WithWarmupHook はウォームアップ終了時に呼ばれる関数を登録する
func WithWarmupHook(hook func(warmup.Report)) Option {
	return func(o *options) { o.reportHook = hook }
}

// New は設定から App を組み立てる
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{
		cfg:    cfg,
		logger: logging.WithComponent("app"),
	}

	if o.discovery == nil {
		o.discovery = camera.NewLinuxDiscovery(camera.WithDevicePattern(cfg.Camera.DevicePattern))
	}
	if o.authorizer == nil {
		if err := a.buildAuthority(o); err != nil {
			return nil, err
		}
	}
	if o.factory == nil {
		o.factory = capture.NewGstFactory()
	}
	if o.configurator == nil {
		o.configurator = camera.NewV4L2Configurator()
	}

	a.loop = mainloop.New(logging.WithComponent("mainloop"))
	a.probe = camera.NewProbe(o.discovery, o.authorizer, logging.WithComponent("probe"))

	warmupOpts := []warmup.Option{warmup.WithLifetime(cfg.Warmup.Lifetime)}
	if o.reportHook != nil {
		warmupOpts = append(warmupOpts, warmup.WithReportHook(o.reportHook))
	}
	a.scheduler = warmup.New(a.probe, o.factory, o.configurator, a.loop, logging.WithComponent("warmup"), warmupOpts...)

	a.gate = permission.NewGate(a.probe, o.prompter, a.scheduler, logging.WithComponent("permission"))
	a.dispatcher = channel.NewDispatcher(cfg.Camera.Channel, a.gate, logging.WithComponent("channel"))
	srv, err := server.New(cfg, a.dispatcher, a.gate, a.scheduler, logging.WithComponent("server"))
	if err != nil {
		return nil, err
	}
	a.server = srv

	return a, nil
}

// buildAuthority は設定された認可方式から Authorizer と Prompter を作る
func (a *App) buildAuthority(o *options) error {
	switch a.cfg.Camera.Authorizer {
	case config.AuthorizerPortal:
		p, err := portal.Connect(logging.WithComponent("portal"),
			portal.WithAppID(a.cfg.Portal.AppID),
			portal.WithPromptTimeout(a.cfg.Portal.PromptTimeout),
		)
		if err != nil {
			// デスクトップセッションが無い環境ではグループ所属で判定する
			a.logger.Warn().Err(err).Msg("デスクトップポータルに接続できないため、グループ認可を使用します")
			o.authorizer = camera.NewGroupAuthorizer(a.cfg.Camera.Group, o.discovery)
			o.prompter = denyPrompter
			return nil
		}
		a.closers = append(a.closers, p.Close)
		o.authorizer, o.prompter = p, p

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if present, err := p.IsCameraPresent(ctx); err != nil {
			a.logger.Debug().Err(err).Msg("ポータルからカメラの有無を取得できません")
		} else {
			a.logger.Info().Bool("camera_present", present).Msg("デスクトップポータルに接続しました")
		}
	case config.AuthorizerGroup:
		o.authorizer = camera.NewGroupAuthorizer(a.cfg.Camera.Group, o.discovery)
		o.prompter = denyPrompter
	case config.AuthorizerStatic:
		s := newStaticAuthority(camera.ParseStatus(a.cfg.Camera.StaticStatus))
		o.authorizer, o.prompter = s, s
	default:
		return fmt.Errorf("無効な認可方式: %q", a.cfg.Camera.Authorizer)
	}
	return nil
}

// Run はサーバーを起動し、停止するまでブロックする
// 停止時は予定済みのセッション停止を実行してから戻る
func (a *App) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go a.loop.Run(loopCtx)

	status := a.gate.Check(ctx)
	a.logger.Info().Str("authorization", string(status)).Str("channel", a.dispatcher.Name()).Msg("camgate を起動します")

	if a.cfg.Warmup.OnStartup && status == camera.StatusAuthorized {
		a.scheduler.Warm()
	}

	err := a.server.Start(ctx)

	stopLoop()
	<-a.loop.Done()
	a.scheduler.Wait()

	for _, closeFn := range a.closers {
		if closeErr := closeFn(); closeErr != nil {
			a.logger.Warn().Err(closeErr).Msg("リソースの解放に失敗")
		}
	}
	return err
}

// denyPrompter はプロンプトを出せない環境で使う
var denyPrompter = permission.PrompterFunc(func(context.Context) bool { return false })

// staticAuthority は設定した状態から始まり、プロンプトには常に許可で応答する
// 許可はプロセス内でのみ保持する
type staticAuthority struct {
	mu     sync.Mutex
	status camera.Status
}

func newStaticAuthority(status camera.Status) *staticAuthority {
	return &staticAuthority{status: status}
}

func (s *staticAuthority) AuthorizationStatus(context.Context) (camera.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *staticAuthority) RequestAccess(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = camera.StatusAuthorized
	return true
}
