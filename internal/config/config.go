package config

import (
	"time"

	"github.com/shouni/go-utils/envutil"

	"github.com/shouni/go-storyboard-kit/pkg/contract"
)

// デフォルト値の定義なのだ
const (
	DefaultTextModel      = "gemini-3-flash-preview"
	DefaultImageModel     = "gemini-3-pro-image-preview"
	DefaultArkModel       = "seedream-4-0"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultRequestTimeout = 2 * time.Minute
	DefaultOutputFile     = "output/storyboard.json" // 更新済みストーリーボードの保存先なのだ
	DefaultOutputImageDir = "output/frames"          // 生成画像の保存先なのだ
	DefaultImageCacheTTL  = 30 * time.Minute
)

// サポートするプロバイダーの識別子です。
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Config はアプリケーション全体の環境設定（APIキーやエンドポイント）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	ArkAPIKey        string
	ArkEndpoint      string
	ArkModel         string

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	return &Config{
		GeminiAPIKey:     envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:      envutil.GetEnv("GEMINI_MODEL", DefaultTextModel),
		GeminiImageModel: envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultImageModel),
		ArkAPIKey:        envutil.GetEnv("ARK_API_KEY", ""),
		ArkEndpoint:      envutil.GetEnv("ARK_ENDPOINT", ""),
		ArkModel:         envutil.GetEnv("ARK_MODEL", DefaultArkModel),
	}
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// ソース入力関連
	StoryboardFile string // --storyboard-file
	OutputFile     string // --output-file
	OutputImageDir string // --output-image-dir
	SettingsFile   string // --settings: 生成デフォルトのYAML

	// プロバイダー・AI挙動設定
	Provider   string // --provider: gemini | ark
	AIModel    string // --model: プロンプト強化・解析用のGeminiモデル
	ImageModel string // --image-model: 画像生成用のモデル

	// バッチ実行制御
	Parallel          bool // --parallel: 一貫性伝播なしの並列戦略
	MaxConcurrent     int  // --max-concurrent
	RequestIntervalMS int  // --interval-ms: 逐次バッチのフレーム間隔
	StopOnError       bool // --stop-on-error

	// 実行制御
	HTTPTimeout time.Duration // --http-timeout
}

// FrameInterval は逐次バッチのフレーム間隔を time.Duration で返します。
// 未指定（0）の場合はコスト安全の既定値を使います。
func (o GenerateOptions) FrameInterval() time.Duration {
	ms := o.RequestIntervalMS
	if ms == 0 {
		ms = contract.DefaultRequestIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}
