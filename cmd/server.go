// Package main はcamgateサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"camgate/internal/app"
	"camgate/internal/config"
	"camgate/internal/logging"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", os.Getenv("CAMGATE_CONFIG"), "設定ファイルのパス")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		authorizer = flag.String("authorizer", "", "認可方式 (portal, group, static)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("camgate")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *authorizer != "" {
		cfg.Camera.Authorizer = *authorizer
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "設定が無効です: %v\n", err)
		os.Exit(1)
	}

	logging.Configure(logging.Config{Level: cfg.Log.Level})
	logger := logging.WithComponent("main")

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初期化に失敗しました")
	}

	logger.Info().Str("addr", cfg.ServerAddress()).Msg("camgate サーバーを起動します")
	if err := a.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}
