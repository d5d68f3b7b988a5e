// Package permission はカメラの認可状態の確認と許可リクエストを担う
//
// # 仕様
//   - Check は副作用なし。プロンプト状態を変えず、プロンプトも出さない
//   - Request は必ず bool で解決する。エラーは返さない
//   - プロンプトはプロセス内で同時に一つだけ。表示中に来たリクエストは
//     新しいプロンプトを出さず、表示中のプロンプトの結果を共有する
//   - 許可された場合はウォームアップを一度だけ起動する。結果は待たない
package permission

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"camgate/internal/camera"
	"camgate/internal/metrics"
)

// PromptState はプラットフォームの許可プロンプトの状態
type PromptState string

const (
	PromptIdle     PromptState = "idle"      // プロンプトは出ていない
	PromptInFlight PromptState = "in_flight" // プロンプトの応答待ち
)

// promptKey はsingleflightのキー。プロンプトはプロセスで一種類だけ
const promptKey = "camera"

// Prompter はプラットフォームの許可プロンプトを表示する
type Prompter interface {
	// RequestAccess はプロンプトを出し、ユーザーが許可したかを返す
	// 失敗やタイムアウトは false として返す
	RequestAccess(ctx context.Context) bool
}

// PrompterFunc は関数を Prompter として使うためのアダプタ
type PrompterFunc func(ctx context.Context) bool

// RequestAccess は f(ctx) を呼ぶ
func (f PrompterFunc) RequestAccess(ctx context.Context) bool {
	return f(ctx)
}

// Warmer は許可後のウォームアップを起動する
// Warm は呼び出し元をブロックしてはいけない
type Warmer interface {
	Warm()
}

// Gate は認可状態の遷移を管理する
type Gate struct {
	probe    camera.Probe
	prompter Prompter
	warmer   Warmer
	logger   zerolog.Logger

	flight singleflight.Group

	mu      sync.Mutex
	state   PromptState
	prompts int
}

// NewGate は新しいGateを作成する
// warmer が nil の場合、許可後のウォームアップは行わない
func NewGate(probe camera.Probe, prompter Prompter, warmer Warmer, logger zerolog.Logger) *Gate {
	return &Gate{
		probe:    probe,
		prompter: prompter,
		warmer:   warmer,
		logger:   logger,
		state:    PromptIdle,
	}
}

// Check は現在の認可状態を返す
func (g *Gate) Check(ctx context.Context) camera.Status {
	return g.probe.AuthorizationStatus(ctx)
}

// Request はカメラへのアクセス許可を求める
func (g *Gate) Request(ctx context.Context) bool {
	status := g.probe.AuthorizationStatus(ctx)

	var granted bool
	switch status {
	case camera.StatusAuthorized:
		g.logger.Debug().Msg("カメラは既に許可されています")
		granted = true
	case camera.StatusDenied, camera.StatusRestricted:
		g.logger.Info().Str("status", string(status)).Msg("カメラへのアクセスは拒否または制限されています")
	case camera.StatusNotDetermined:
		g.logger.Info().Msg("カメラの許可が未確認のためリクエストします")
		granted = g.prompt(ctx)
	default:
		g.logger.Warn().Str("status", string(status)).Msg("未知の認可状態のため拒否として扱います")
	}

	metrics.PermissionRequestsTotal.WithLabelValues(string(status), strconv.FormatBool(granted)).Inc()
	return granted
}

// prompt はプロンプトを一つだけ出し、同時に来た呼び出しには同じ結果を返す
func (g *Gate) prompt(ctx context.Context) bool {
	// 最初の呼び出し元がキャンセルしても他の待機者には結果を届ける
	flightCtx := context.WithoutCancel(ctx)

	ch := g.flight.DoChan(promptKey, func() (any, error) {
		// 前のプロンプトが解決した直後に合流した場合は再度プロンプトを出さない
		if status := g.probe.AuthorizationStatus(flightCtx); status != camera.StatusNotDetermined {
			g.logger.Debug().Str("status", string(status)).Msg("認可状態が確定済みのためプロンプトを省略します")
			return status.Permits(), nil
		}

		g.setState(PromptInFlight)
		granted := g.prompter.RequestAccess(flightCtx)
		g.setState(PromptIdle)

		g.logger.Info().Bool("granted", granted).Msg("カメラ許可リクエストの結果")

		if granted && g.warmer != nil {
			g.warmer.Warm()
		}
		return granted, nil
	})

	res := <-ch
	if res.Shared {
		g.logger.Debug().Msg("表示中のプロンプトの結果を共有しました")
	}
	granted, _ := res.Val.(bool)
	return granted
}

func (g *Gate) setState(state PromptState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = state
	if state == PromptInFlight {
		g.prompts++
		metrics.PromptsIssuedTotal.Inc()
		metrics.PromptInFlight.Set(1)
	} else {
		metrics.PromptInFlight.Set(0)
	}
}

// PromptState は現在のプロンプト状態を返す
func (g *Gate) PromptState() PromptState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// PromptsIssued はこれまでに出したプロンプトの数を返す
func (g *Gate) PromptsIssued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts
}
