package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"camgate/internal/camera"
)

// 既定値
const (
	DefaultChannel       = "com.demo.app/camera"
	DefaultPromptTimeout = 2 * time.Minute
	DefaultLifetime      = time.Second
)

// 認可状態の取得方法
const (
	AuthorizerPortal = "portal" // xdg-desktop-portal に問い合わせる
	AuthorizerGroup  = "group"  // デバイスグループへの所属で判定する
	AuthorizerStatic = "static" // 設定した状態を返す
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Portal PortalConfig `yaml:"portal"`
	Warmup WarmupConfig `yaml:"warmup"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" env:"CAMGATE_SERVER_HOST"` // リッスンするホスト
	Port int    `yaml:"port" env:"PORT"`                // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"CAMGATE_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"CAMGATE_WRITE_TIMEOUT"` // 許可プロンプトの応答待ちより長くする
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CAMGATE_SHUTDOWN_TIMEOUT"`
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	DevicePattern string `yaml:"device_pattern" env:"CAMGATE_DEVICE_PATTERN"` // デバイスノードのglob
	Authorizer    string `yaml:"authorizer" env:"CAMGATE_AUTHORIZER"`         // portal, group, static のいずれか
	Group         string `yaml:"group" env:"CAMGATE_CAMERA_GROUP"`            // group 認可で使うグループ名
	StaticStatus  string `yaml:"static_status" env:"CAMGATE_STATIC_STATUS"`   // static 認可が返す状態
	Channel       string `yaml:"channel" env:"CAMGATE_CHANNEL"`               // 境界チャンネル名
}

// PortalConfig はデスクトップポータルの設定
type PortalConfig struct {
	AppID         string        `yaml:"app_id" env:"CAMGATE_PORTAL_APP_ID"`
	PromptTimeout time.Duration `yaml:"prompt_timeout" env:"CAMGATE_PROMPT_TIMEOUT"`
}

// WarmupConfig はウォームアップの設定
type WarmupConfig struct {
	Lifetime  time.Duration `yaml:"lifetime" env:"CAMGATE_WARMUP_LIFETIME"`     // セッションの動作時間
	OnStartup bool          `yaml:"on_startup" env:"CAMGATE_WARMUP_ON_STARTUP"` // 許可済みなら起動時にも実行する
}

// LogConfig はログの設定
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    DefaultPromptTimeout + 30*time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			DevicePattern: "/dev/video*",
			Authorizer:    AuthorizerPortal,
			Group:         "video",
			StaticStatus:  string(camera.StatusNotDetermined),
			Channel:       DefaultChannel,
		},
		Portal: PortalConfig{
			PromptTimeout: DefaultPromptTimeout,
		},
		Warmup: WarmupConfig{
			Lifetime:  DefaultLifetime,
			OnStartup: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
// デフォルト値に設定ファイル (path が空なら省略) を重ね、最後に環境変数で上書きする
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の解析に失敗: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// decodeYAML は未知のキーを拒否してYAMLを読み込む
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errors.New("タイムアウトに負の値は指定できません")
	}

	// カメラ設定の検証
	if c.Camera.DevicePattern == "" {
		return errors.New("デバイスパターンが設定されていません")
	}
	if c.Camera.Channel == "" {
		return errors.New("チャンネル名が設定されていません")
	}
	switch c.Camera.Authorizer {
	case AuthorizerPortal:
		if c.Portal.PromptTimeout <= 0 {
			return fmt.Errorf("無効なプロンプトタイムアウト: %s", c.Portal.PromptTimeout)
		}
	case AuthorizerGroup:
		if c.Camera.Group == "" {
			return errors.New("グループ名が設定されていません")
		}
	case AuthorizerStatic:
		if status := camera.ParseStatus(c.Camera.StaticStatus); status == camera.StatusUnknown && c.Camera.StaticStatus != string(camera.StatusUnknown) {
			return fmt.Errorf("無効な認可状態: %q", c.Camera.StaticStatus)
		}
	default:
		return fmt.Errorf("無効な認可方式: %q", c.Camera.Authorizer)
	}

	if c.Warmup.Lifetime <= 0 {
		return fmt.Errorf("無効なウォームアップ時間: %s", c.Warmup.Lifetime)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
