package consistency

import (
	"context"
	"fmt"
	"sync"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// --- Mocks ---

// mockExtractor はフレームIDごとの解析結果を返し、呼び出し回数を記録します。
type mockExtractor struct {
	mu sync.Mutex

	colorsByURL map[string]*domain.ColorPaletteAnalysis
	styleByURL  map[string]*domain.StyleAnalysis

	colorCalls       map[string]int
	styleCalls       map[string]int
	fingerprintCalls map[string]int

	err error
}

func newMockExtractor() *mockExtractor {
	return &mockExtractor{
		colorsByURL:      make(map[string]*domain.ColorPaletteAnalysis),
		styleByURL:       make(map[string]*domain.StyleAnalysis),
		colorCalls:       make(map[string]int),
		styleCalls:       make(map[string]int),
		fingerprintCalls: make(map[string]int),
	}
}

func (m *mockExtractor) AnalyzeColors(ctx context.Context, imageURL string) (*domain.ColorPaletteAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colorCalls[imageURL]++
	if m.err != nil {
		return nil, m.err
	}
	if a, ok := m.colorsByURL[imageURL]; ok {
		return a, nil
	}
	return &domain.ColorPaletteAnalysis{DominantColor: "orange", Palette: []string{"orange", "gold"}, Temperature: "warm"}, nil
}

func (m *mockExtractor) AnalyzeStyle(ctx context.Context, imageURL string) (*domain.StyleAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.styleCalls[imageURL]++
	if m.err != nil {
		return nil, m.err
	}
	if a, ok := m.styleByURL[imageURL]; ok {
		return a, nil
	}
	return &domain.StyleAnalysis{ArtStyle: "anime", Lighting: "golden hour", Mood: "serene", Composition: "wide shot"}, nil
}

func (m *mockExtractor) ExtractVisualFingerprint(ctx context.Context, imageURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fingerprintCalls[imageURL]++
	if m.err != nil {
		return "", m.err
	}
	return "fp-" + imageURL, nil
}

func (m *mockExtractor) totalCalls(imageURL string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colorCalls[imageURL] + m.styleCalls[imageURL] + m.fingerprintCalls[imageURL]
}

func completedFrame(id string) domain.Frame {
	url := fmt.Sprintf("https://example.com/%s.png", id)
	return domain.Frame{
		ID:      id,
		SceneID: "scene-" + id,
		Status:  domain.FrameStatusCompleted,
		Result:  &domain.GenerationResult{ImageURL: url, GenerationID: "gen-" + id},
	}
}
