package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

func TestParseByteDanceResponse(t *testing.T) {
	t.Run("正常な応答はパースできる", func(t *testing.T) {
		raw := []byte(`{
			"request_id": "req-12345",
			"model": "seedream-4-0",
			"created": 1735689600,
			"data": [{"url": "https://cdn.example.com/img/abc.png", "seed": 42}],
			"usage": {"generated_images": 1, "total_cost": 0.04},
			"processing_time_ms": 3500
		}`)

		resp, err := ParseByteDanceResponse(raw)
		require.NoError(t, err)
		assert.Equal(t, "req-12345", resp.RequestID)
		assert.Len(t, resp.Data, 1)
	})

	t.Run("dataが空の応答はValidationErrorになる", func(t *testing.T) {
		raw := []byte(`{"request_id": "req-1", "model": "seedream-4-0", "data": [], "processing_time_ms": 100}`)

		_, err := ParseByteDanceResponse(raw)
		require.Error(t, err)
		ve, ok := AsValidationError(err)
		require.True(t, ok, "ValidationError型であること")
		assert.Equal(t, "ByteDanceImageResponse", ve.Entity)
		assert.NotEmpty(t, ve.Issues)
	})

	t.Run("URLが不正な応答はValidationErrorになる", func(t *testing.T) {
		raw := []byte(`{"request_id": "req-1", "model": "seedream-4-0", "data": [{"url": "not-a-url"}], "processing_time_ms": 100}`)

		_, err := ParseByteDanceResponse(raw)
		require.Error(t, err)
		_, ok := AsValidationError(err)
		assert.True(t, ok)
	})

	t.Run("壊れたJSONは元のペイロードを保持したエラーになる", func(t *testing.T) {
		raw := []byte(`{invalid`)

		_, err := ParseByteDanceResponse(raw)
		require.Error(t, err)
		ve, ok := AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, `{invalid`, ve.Payload)
	})
}

func TestGenerationResultFromByteDance(t *testing.T) {
	t.Run("全フィールドが欠落なく往復する", func(t *testing.T) {
		raw := []byte(`{
			"request_id": "req-777",
			"model": "seedream-4-0",
			"data": [{"url": "https://cdn.example.com/img/final.png", "thumbnail_url": "https://cdn.example.com/img/final_t.png", "seed": 7}],
			"usage": {"generated_images": 1, "total_cost": 0.08},
			"processing_time_ms": 4200
		}`)

		resp, err := ParseByteDanceResponse(raw)
		require.NoError(t, err)

		cfg := domain.DefaultGenerationConfig()
		result, err := GenerationResultFromByteDance(resp, "sunset beach, golden hour", cfg)
		require.NoError(t, err)

		assert.Equal(t, "https://cdn.example.com/img/final.png", result.ImageURL)
		assert.Equal(t, "https://cdn.example.com/img/final_t.png", result.ThumbnailURL)
		assert.Equal(t, "req-777", result.GenerationID)
		assert.Equal(t, domain.ImageModel("seedream-4-0"), result.Model)
		assert.Equal(t, "sunset beach, golden hour", result.Prompt)
		// プロバイダーのミリ秒は秒に変換される
		assert.InDelta(t, 4.2, result.ProcessingTime, 1e-9)
		assert.InDelta(t, 0.08, result.Cost, 1e-9)
	})

	t.Run("request_idがない場合は生成IDが採番される", func(t *testing.T) {
		raw := []byte(`{
			"model": "seedream-4-0",
			"data": [{"url": "https://cdn.example.com/img/x.png"}],
			"processing_time_ms": 1000
		}`)

		resp, err := ParseByteDanceResponse(raw)
		require.NoError(t, err)

		result, err := GenerationResultFromByteDance(resp, "p", domain.DefaultGenerationConfig())
		require.NoError(t, err)
		assert.NotEmpty(t, result.GenerationID)
	})
}
