// Package channel は外部の呼び出し元とカメラ許可の処理をつなぐ境界チャンネル
//
// メソッド名で処理を振り分けるだけで、許可の判断は持たない。
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"camgate/internal/camera"
	"camgate/internal/metrics"
)

// DefaultName はチャンネルの既定名
const DefaultName = "com.demo.app/camera"

// 公開するメソッド名。どちらも引数を取らない
const (
	MethodCheckPermission   = "checkCameraPermission"
	MethodRequestPermission = "requestCameraPermission"
)

// ErrNotImplemented は未知のメソッドが呼ばれたことを表す
var ErrNotImplemented = errors.New("メソッドは実装されていません")

// Gate はチャンネルが委譲する許可処理
type Gate interface {
	Check(ctx context.Context) camera.Status
	Request(ctx context.Context) bool
}

// Dispatcher はメソッド呼び出しを Gate に振り分ける
type Dispatcher struct {
	name   string
	gate   Gate
	logger zerolog.Logger
}

// NewDispatcher は新しいDispatcherを作成する
// name が空の場合は DefaultName を使う
func NewDispatcher(name string, gate Gate, logger zerolog.Logger) *Dispatcher {
	if name == "" {
		name = DefaultName
	}
	return &Dispatcher{
		name:   name,
		gate:   gate,
		logger: logger,
	}
}

// Name はチャンネル名を返す
func (d *Dispatcher) Name() string {
	return d.name
}

// Dispatch はメソッドを実行して bool の結果を返す
// エラーになるのは未知のメソッドだけ
func (d *Dispatcher) Dispatch(ctx context.Context, method string) (bool, error) {
	switch method {
	case MethodCheckPermission:
		metrics.ChannelCallsTotal.WithLabelValues(method).Inc()
		return d.gate.Check(ctx) == camera.StatusAuthorized, nil
	case MethodRequestPermission:
		metrics.ChannelCallsTotal.WithLabelValues(method).Inc()
		return d.gate.Request(ctx), nil
	default:
		metrics.ChannelCallsTotal.WithLabelValues("unknown").Inc()
		d.logger.Debug().Str("method", method).Msg("未知のメソッドが呼ばれました")
		return false, fmt.Errorf("%s.%s: %w", d.name, method, ErrNotImplemented)
	}
}
