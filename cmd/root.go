package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/config"
)

// opts は全コマンドで共有する実行時オプションなのだ。
var opts config.GenerateOptions

// rootCmd は go-storyboard-kit のトップレベルコマンドなのだ。
var rootCmd = &cobra.Command{
	Use:   "go-storyboard-kit",
	Short: "ストーリーボードのバッチ画像生成ツールなのだ。",
	Long: `ストーリーボードJSONを読み込み、フレームごとの画像をAIで一括生成するのだ。
逐次モードでは前フレームの視覚的特徴を次フレームへ伝播させて、一貫性を保つのだよ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- ソース入力関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.StoryboardFile, "storyboard-file", "f", "", "ストーリーボードJSONのパス（ローカル or gs://...）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.SettingsFile, "settings", "", "生成デフォルトを定義したYAMLのパスなのだ。")

	// --- 生成結果の出力設定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.OutputFile, "output-file", "o", config.DefaultOutputFile, "更新済みストーリーボードの保存パス（ローカル or gs://...）なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.OutputImageDir, "output-image-dir", "i", config.DefaultOutputImageDir, "生成された画像を保存するディレクトリ（ローカル or gs://...）なのだ。")

	// --- プロバイダー・AIモデル設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.Provider, "provider", config.ProviderGemini, "画像生成プロバイダー（gemini または ark）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.AIModel, "model", config.DefaultTextModel, "プロンプト強化・解析に使う Gemini モデル名なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", "", "画像生成に使うモデル名（省略時はプロバイダーの既定）なのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "Webリクエストのタイムアウトなのだ。")

	// --- バッチ実行制御 ---
	rootCmd.PersistentFlags().BoolVar(&opts.Parallel, "parallel", false, "一貫性伝播なしの並列バッチ戦略を使うのだ。")
	rootCmd.PersistentFlags().IntVar(&opts.MaxConcurrent, "max-concurrent", 0, "並列バッチの最大同時実行数なのだ。")
	rootCmd.PersistentFlags().IntVar(&opts.RequestIntervalMS, "interval-ms", 0, "逐次バッチのフレーム間隔（ミリ秒）なのだ。")
	rootCmd.PersistentFlags().BoolVar(&opts.StopOnError, "stop-on-error", true, "逐次バッチで失敗時に残りを中断するのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	switch opts.Provider {
	case config.ProviderArk:
		if os.Getenv("ARK_API_KEY") == "" {
			return fmt.Errorf("エラー: 環境変数 ARK_API_KEY が設定されていません。Ark API の利用には必須なのだ")
		}
	default:
		// Gemini APIを利用するため、APIキーの存在チェックは欠かせないのだ！
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
		}
	}
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	// .env があれば読み込むのだ。無くてもエラーにはしないのだよ。
	_ = godotenv.Load()

	addAppFlags(rootCmd)
	rootCmd.AddCommand(generateCmd, validateCmd, scoreCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
