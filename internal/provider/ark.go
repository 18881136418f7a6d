package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/contract"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
)

// DefaultArkEndpoint は ByteDance Ark 画像生成APIの既定エンドポイントです。
const DefaultArkEndpoint = "https://ark.cn-beijing.volces.com/api/v3/images/generations"

// ErrConsistencyNotSupported は、Seedream系が画像解析ケイパビリティを
// 持たないことを表します。逐次バッチの伝播はこのエラーを握りつぶして続行します。
var ErrConsistencyNotSupported = errors.New("このプロバイダーは一貫性データの抽出をサポートしていません")

// arkImageRequest は Ark 画像生成APIへの要求ボディです。
type arkImageRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Size      string `json:"size,omitempty"`
	Seed      *int64 `json:"seed,omitempty"`
	Image     string `json:"image,omitempty"` // 参照画像URL
	Watermark bool   `json:"watermark"`
}

// ArkClient は ByteDance Ark (Seedream) を使った engine.APIClient の実装です。
// プロンプト強化は外部呼び出しなしのローカル合成で行います。
type ArkClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

// NewArkClient は APIキーとモデル名を指定して ArkClient を初期化します。
// endpoint が空の場合は既定エンドポイントを使います。
func NewArkClient(httpClient *http.Client, endpoint, apiKey, model string) (*ArkClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey (ARK_API_KEY) は必須です")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if endpoint == "" {
		endpoint = DefaultArkEndpoint
	}
	if model == "" {
		model = string(domain.ModelSeedream)
	}
	return &ArkClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

// GenerateImage は Ark へ生成要求を送り、契約層で検証済みの応答を正規化します。
func (c *ArkClient) GenerateImage(ctx context.Context, input engine.GenerateImageInput) (*engine.GenerateImageOutput, error) {
	reqBody := arkImageRequest{
		Model:     c.model,
		Prompt:    input.Prompt,
		Size:      fmt.Sprintf("%dx%d", input.Width, input.Height),
		Seed:      input.Seed,
		Image:     input.ReferenceImage,
		Watermark: false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("Ark要求のエンコードに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("Ark要求の構築に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Ark APIの呼び出しに失敗しました: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("Ark応答の読み取りに失敗しました: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ark APIがエラーを返しました (status: %d, body: %s)",
			httpResp.StatusCode, truncateString(string(body), 200))
	}

	// 契約層のスキーマ検証を通らない応答はここで弾く
	parsed, err := contract.ParseByteDanceResponse(body)
	if err != nil {
		return nil, err
	}

	first := parsed.Data[0]
	cost := 0.0
	if parsed.Usage != nil {
		cost = parsed.Usage.TotalCost
	}

	return &engine.GenerateImageOutput{
		ImageURL:       first.URL,
		ThumbnailURL:   first.ThumbnailURL,
		GenerationID:   parsed.RequestID,
		Seed:           first.Seed,
		ProcessingTime: float64(parsed.ProcessingTimeMS) / 1000.0,
		Cost:           cost,
	}, nil
}

// EnhancePrompt はリファレンスとスタイルをローカルで決定論的に合成します。
func (c *ArkClient) EnhancePrompt(ctx context.Context, prompt, style string, refs []domain.ConsistencyReference) (string, error) {
	return ComposeEnhancedPrompt(prompt, style, refs), nil
}

// ExtractConsistencyData は常に ErrConsistencyNotSupported を返します。
func (c *ArkClient) ExtractConsistencyData(ctx context.Context, imageURL string) (*domain.ConsistencyData, error) {
	return nil, ErrConsistencyNotSupported
}
