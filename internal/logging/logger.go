// Package logging はzerologによる構造化ログの初期化を担う
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config はロガーの設定
type Config struct {
	Level   string    // ログレベル ("debug", "info" など)
	Output  io.Writer // 出力先 (デフォルト: os.Stdout)
	Service string    // 全ログに付与するサービス名
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure はグローバルロガーを一度だけ初期化する
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Level != "" {
			if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}

		service := cfg.Service
		if service == "" {
			service = "camgate"
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Logger()
	})
}

// Base は設定済みのベースロガーを返す
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent はコンポーネント名付きの子ロガーを返す
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
