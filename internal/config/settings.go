package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// Settings は YAML 設定ファイルで指定できる生成デフォルトです。
// CLI フラグより弱く、ドメインの既定値より強い中間層として働きます。
type Settings struct {
	Generation GenerationSettings `yaml:"generation"`
	Batch      BatchSettings      `yaml:"batch"`
}

// GenerationSettings は全フレーム共通の生成設定です。
type GenerationSettings struct {
	Model          string `yaml:"model"`
	AspectRatio    string `yaml:"aspect_ratio"`
	Quality        string `yaml:"quality"`
	StylePreset    string `yaml:"style_preset"`
	NegativePrompt string `yaml:"negative_prompt"`
}

// BatchSettings はバッチ実行の既定動作です。
type BatchSettings struct {
	RequestIntervalMS int   `yaml:"request_interval_ms"`
	MaxConcurrent     int   `yaml:"max_concurrent"`
	StopOnError       *bool `yaml:"stop_on_error"`
}

// LoadSettings は YAML 設定ファイルを読み込みます。path が空なら空設定を返します。
func LoadSettings(path string) (*Settings, error) {
	var settings Settings
	if path == "" {
		return &settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル '%s' の読み込みに失敗しました: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("設定ファイル '%s' の解析に失敗しました: %w", path, err)
	}
	return &settings, nil
}

// ResolveGenerationConfig はドメインの既定値に YAML 設定を重ねた生成設定を返します。
func (s *Settings) ResolveGenerationConfig() domain.ImageGenerationConfig {
	override := domain.ImageGenerationConfig{
		Model:          domain.ImageModel(s.Generation.Model),
		AspectRatio:    domain.AspectRatio(s.Generation.AspectRatio),
		Quality:        domain.Quality(s.Generation.Quality),
		StylePreset:    s.Generation.StylePreset,
		NegativePrompt: s.Generation.NegativePrompt,
	}
	return domain.MergeGenerationConfig(domain.DefaultGenerationConfig(), &override)
}

// ApplyToOptions は YAML のバッチ設定をオプションへ反映します。
// 数値はフラグ未指定（ゼロ値）の項目だけを埋め、stop_on_error はYAMLに
// 記述がある場合のみ上書きします。
func (s *Settings) ApplyToOptions(opts *GenerateOptions) {
	if opts.RequestIntervalMS == 0 && s.Batch.RequestIntervalMS > 0 {
		opts.RequestIntervalMS = s.Batch.RequestIntervalMS
	}
	if opts.MaxConcurrent == 0 && s.Batch.MaxConcurrent > 0 {
		opts.MaxConcurrent = s.Batch.MaxConcurrent
	}
	if s.Batch.StopOnError != nil {
		opts.StopOnError = *s.Batch.StopOnError
	}
}
