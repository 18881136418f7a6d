package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shouni/gemini-image-kit/pkg/adapters"
	"github.com/shouni/go-ai-client/v2/pkg/ai/gemini"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
)

func newTestGeminiClient(t *testing.T, core *mockImageCore, ai *mockAIClient, writer *mockOutputWriter) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(core, ai, writer,
		string(domain.ModelGeminiImage), "gemini-3-flash-preview", "output/images")
	require.NoError(t, err)
	return c
}

func TestGeminiClient_GenerateImage(t *testing.T) {
	ctx := context.Background()

	t.Run("画像を生成して保存し、file URLを返す", func(t *testing.T) {
		core := &mockImageCore{}
		ai := &mockAIClient{}
		writer := &mockOutputWriter{}
		c := newTestGeminiClient(t, core, ai, writer)

		seed := int64(42)
		out, err := c.GenerateImage(ctx, engine.GenerateImageInput{
			FrameID:     "scene-1",
			Prompt:      "sunset beach",
			AspectRatio: domain.AspectRatio16x9,
			Seed:        &seed,
		})
		require.NoError(t, err)

		assert.Equal(t, "file:///output/images/scene-1.png", out.ImageURL)
		assert.Equal(t, int64(42), out.Seed)
		assert.InDelta(t, geminiImageCost, out.Cost, 1e-9)
		assert.NotEmpty(t, out.GenerationID)

		require.Len(t, writer.paths, 1)
		assert.Equal(t, "output/images/scene-1.png", writer.paths[0])
		assert.Equal(t, "image/png", writer.mimeTypes[0])
		assert.Equal(t, []byte("image-bytes"), writer.payloads[0])

		assert.Equal(t, "16:9", ai.lastOpts.AspectRatio)
		require.NotNil(t, ai.lastOpts.Seed)
		assert.Equal(t, int32(42), *ai.lastOpts.Seed)
	})

	t.Run("参照画像はPartとして追加される", func(t *testing.T) {
		core := &mockImageCore{}
		ai := &mockAIClient{}
		c := newTestGeminiClient(t, core, ai, &mockOutputWriter{})

		_, err := c.GenerateImage(ctx, engine.GenerateImageInput{
			FrameID:        "scene-1",
			Prompt:         "sunset beach",
			ReferenceImage: "https://example.com/prev.png",
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"https://example.com/prev.png"}, core.preparedURLs)
		assert.Len(t, ai.lastParts, 2, "テキスト + 参照画像の2パーツになる")
	})

	t.Run("ネガティブプロンプトは本文へ織り込まれる", func(t *testing.T) {
		core := &mockImageCore{}
		ai := &mockAIClient{}
		c := newTestGeminiClient(t, core, ai, &mockOutputWriter{})

		_, err := c.GenerateImage(ctx, engine.GenerateImageInput{
			FrameID:        "scene-1",
			Prompt:         "sunset beach",
			NegativePrompt: "text, watermark",
		})
		require.NoError(t, err)

		require.NotEmpty(t, ai.lastParts)
		assert.Contains(t, ai.lastParts[0].Text, "Avoid: text, watermark")
	})

	t.Run("応答解析の失敗はラップして返る", func(t *testing.T) {
		parseErr := errors.New("画像データが見つかりませんでした")
		core := &mockImageCore{
			parseFunc: func(resp *gemini.Response, seed int64) (*adapters.ImageOutput, error) {
				return nil, parseErr
			},
		}
		c := newTestGeminiClient(t, core, &mockAIClient{}, &mockOutputWriter{})

		_, err := c.GenerateImage(ctx, engine.GenerateImageInput{FrameID: "scene-1", Prompt: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, parseErr)
	})

	t.Run("保存失敗はエラーになる", func(t *testing.T) {
		writer := &mockOutputWriter{err: errors.New("disk full")}
		c := newTestGeminiClient(t, &mockImageCore{}, &mockAIClient{}, writer)

		_, err := c.GenerateImage(ctx, engine.GenerateImageInput{FrameID: "scene-1", Prompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "保存に失敗")
	})
}

func TestGeminiClient_EnhancePrompt(t *testing.T) {
	ctx := context.Background()

	t.Run("モデルの応答テキストがそのまま返る", func(t *testing.T) {
		ai := &mockAIClient{
			generateContentFunc: func(prompt, model string) (*gemini.Response, error) {
				return &gemini.Response{Text: "  a cinematic sunset beach  "}, nil
			},
		}
		c := newTestGeminiClient(t, &mockImageCore{}, ai, &mockOutputWriter{})

		enhanced, err := c.EnhancePrompt(ctx, "sunset beach", "anime", nil)
		require.NoError(t, err)
		assert.Equal(t, "a cinematic sunset beach", enhanced)
	})

	t.Run("空応答ならローカル合成へフォールバックする", func(t *testing.T) {
		ai := &mockAIClient{
			generateContentFunc: func(prompt, model string) (*gemini.Response, error) {
				return &gemini.Response{Text: ""}, nil
			},
		}
		c := newTestGeminiClient(t, &mockImageCore{}, ai, &mockOutputWriter{})

		refs := []domain.ConsistencyReference{
			{ID: "r1", Weight: 0.8, KeyFeatures: []string{"golden hour"}, IsActive: true},
		}
		enhanced, err := c.EnhancePrompt(ctx, "sunset beach", "anime", refs)
		require.NoError(t, err)
		assert.Equal(t, "sunset beach, golden hour, anime", enhanced)
	})

	t.Run("API失敗は伝播する", func(t *testing.T) {
		backendErr := errors.New("quota exceeded")
		ai := &mockAIClient{
			generateContentFunc: func(prompt, model string) (*gemini.Response, error) {
				return nil, backendErr
			},
		}
		c := newTestGeminiClient(t, &mockImageCore{}, ai, &mockOutputWriter{})

		_, err := c.EnhancePrompt(ctx, "sunset beach", "", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, backendErr)
	})
}

func TestGeminiClient_ExtractConsistencyData(t *testing.T) {
	ctx := context.Background()

	t.Run("コードブロック入りJSON応答を解析できる", func(t *testing.T) {
		ai := &mockAIClient{
			generateWithPartsFunc: func(model string, parts []*genai.Part, opts gemini.ImageOptions) (*gemini.Response, error) {
				return &gemini.Response{Text: "```json\n" + `{"style_fingerprint":"cel shading","color_palette":["orange","gold"],"lighting_profile":"golden hour","composition_style":"wide shot"}` + "\n```"}, nil
			},
		}
		c := newTestGeminiClient(t, &mockImageCore{}, ai, &mockOutputWriter{})

		data, err := c.ExtractConsistencyData(ctx, "https://example.com/frame1.png")
		require.NoError(t, err)
		assert.Equal(t, "cel shading", data.StyleFingerprint)
		assert.Equal(t, []string{"orange", "gold"}, data.ColorPalette)
		assert.Equal(t, "golden hour", data.LightingProfile)
		assert.Equal(t, "wide shot", data.CompositionStyle)
	})

	t.Run("画像を取得できなければエラーになる", func(t *testing.T) {
		core := &mockImageCore{
			prepareFunc: func(ctx context.Context, url string) *genai.Part { return nil },
		}
		c := newTestGeminiClient(t, core, &mockAIClient{}, &mockOutputWriter{})

		_, err := c.ExtractConsistencyData(ctx, "https://example.com/missing.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "取得できませんでした")
	})

	t.Run("JSONを含まない応答はエラーになる", func(t *testing.T) {
		ai := &mockAIClient{
			generateWithPartsFunc: func(model string, parts []*genai.Part, opts gemini.ImageOptions) (*gemini.Response, error) {
				return &gemini.Response{Text: "すみません、解析できませんでした"}, nil
			},
		}
		c := newTestGeminiClient(t, &mockImageCore{}, ai, &mockOutputWriter{})

		_, err := c.ExtractConsistencyData(ctx, "https://example.com/frame1.png")
		require.Error(t, err)
	})
}

func TestComposeEnhancedPrompt(t *testing.T) {
	t.Run("特徴は重みの降順で並び、重複は除かれる", func(t *testing.T) {
		refs := []domain.ConsistencyReference{
			{ID: "low", Weight: 0.3, KeyFeatures: []string{"soft light", "Orange"}},
			{ID: "high", Weight: 0.9, KeyFeatures: []string{"orange", "cel shading"}},
		}

		got := ComposeEnhancedPrompt("sunset beach", "anime", refs)
		assert.Equal(t, "sunset beach, orange, cel shading, soft light, anime", got)
	})

	t.Run("リファレンスもスタイルもなければ元のまま", func(t *testing.T) {
		assert.Equal(t, "sunset beach", ComposeEnhancedPrompt("sunset beach", "", nil))
	})
}

func TestToResultURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"gs://bucket/images/f.png", "gs://bucket/images/f.png"},
		{"https://cdn.example.com/f.png", "https://cdn.example.com/f.png"},
		{"/tmp/out/f.png", "file:///tmp/out/f.png"},
		{"output/images/f.png", "file:///output/images/f.png"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, toResultURL(tc.in), fmt.Sprintf("in=%s", tc.in))
	}
}
