package provider

import (
	"context"
	"io"
	"sync"

	"github.com/shouni/gemini-image-kit/pkg/adapters"
	"github.com/shouni/go-ai-client/v2/pkg/ai/gemini"
	"google.golang.org/genai"
)

// --- Mocks ---

// mockImageCore は adapters.ImageGeneratorCore のテスト用モックです。
type mockImageCore struct {
	prepareFunc func(ctx context.Context, url string) *genai.Part
	parseFunc   func(resp *gemini.Response, seed int64) (*adapters.ImageOutput, error)

	preparedURLs []string
}

func (m *mockImageCore) PrepareImagePart(ctx context.Context, url string) *genai.Part {
	m.preparedURLs = append(m.preparedURLs, url)
	if m.prepareFunc != nil {
		return m.prepareFunc(ctx, url)
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("ref")}}
}

func (m *mockImageCore) ToPart(data []byte) *genai.Part { return nil }

func (m *mockImageCore) ParseToResponse(resp *gemini.Response, seed int64) (*adapters.ImageOutput, error) {
	if m.parseFunc != nil {
		return m.parseFunc(resp, seed)
	}
	return &adapters.ImageOutput{Data: []byte("image-bytes"), MimeType: "image/png", UsedSeed: seed}, nil
}

// mockAIClient は gemini.GenerativeModel のテスト用モックです。
// 未使用メソッドは埋め込みインターフェースで解決します。
type mockAIClient struct {
	gemini.GenerativeModel

	generateWithPartsFunc func(model string, parts []*genai.Part, opts gemini.ImageOptions) (*gemini.Response, error)
	generateContentFunc   func(prompt, model string) (*gemini.Response, error)

	lastParts []*genai.Part
	lastOpts  gemini.ImageOptions
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.ImageOptions) (*gemini.Response, error) {
	m.lastParts = parts
	m.lastOpts = opts
	if m.generateWithPartsFunc != nil {
		return m.generateWithPartsFunc(model, parts, opts)
	}
	return &gemini.Response{}, nil
}

func (m *mockAIClient) GenerateContent(ctx context.Context, prompt string, model string) (*gemini.Response, error) {
	if m.generateContentFunc != nil {
		return m.generateContentFunc(prompt, model)
	}
	return &gemini.Response{Text: "enhanced " + prompt}, nil
}

// mockOutputWriter は remoteio.OutputWriter のテスト用モックです。
type mockOutputWriter struct {
	mu        sync.Mutex
	paths     []string
	mimeTypes []string
	payloads  [][]byte
	err       error
}

func (m *mockOutputWriter) Write(ctx context.Context, path string, r io.Reader, mimeType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.paths = append(m.paths, path)
	m.mimeTypes = append(m.mimeTypes, mimeType)
	m.payloads = append(m.payloads, data)
	return nil
}
