package main

import (
	"context"
	"fmt"
	"os"

	"camgate/internal/app"
	"camgate/internal/config"
	"camgate/internal/logging"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load(os.Getenv("CAMGATE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	logging.Configure(logging.Config{Level: cfg.Log.Level})
	logger := logging.WithComponent("main")

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初期化に失敗しました")
	}

	// サーバーを起動
	if err := a.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}
