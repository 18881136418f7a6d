package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// --- Mocks ---

// mockAPIClient は受け取った入力を記録し、同時実行数の最大値を観測します。
// release を設定すると GenerateImage を任意のタイミングまでブロックできます。
type mockAPIClient struct {
	mu sync.Mutex

	inputs      []GenerateImageInput
	enhanceRefs [][]domain.ConsistencyReference
	extracts    []string

	failGenerate map[string]error
	enhanceErr   error
	extractErr   error

	started chan string   // 非nilならGenerateImage開始時にFrameIDを送る
	release chan struct{} // 非nilならGenerateImageはclose(release)かctx終了までブロックする

	callDelay time.Duration

	inFlight    int
	maxInFlight int
	seq         int
}

func newMockAPIClient() *mockAPIClient {
	return &mockAPIClient{failGenerate: make(map[string]error)}
}

func (m *mockAPIClient) GenerateImage(ctx context.Context, input GenerateImageInput) (*GenerateImageOutput, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.seq++
	n := m.seq
	failErr := m.failGenerate[input.FrameID]
	started := m.started
	release := m.release
	delay := m.callDelay
	m.mu.Unlock()

	if started != nil {
		started <- input.FrameID
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			m.decrement()
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	m.decrement()

	if failErr != nil {
		return nil, failErr
	}
	return &GenerateImageOutput{
		ImageURL:     fmt.Sprintf("https://img.example.com/%s/%d.png", input.FrameID, n),
		GenerationID: fmt.Sprintf("gen-%s-%d", input.FrameID, n),
		Seed:         42,
		Cost:         0.04,
	}, nil
}

func (m *mockAPIClient) EnhancePrompt(ctx context.Context, prompt, style string, refs []domain.ConsistencyReference) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]domain.ConsistencyReference, len(refs))
	copy(copied, refs)
	m.enhanceRefs = append(m.enhanceRefs, copied)
	if m.enhanceErr != nil {
		return "", m.enhanceErr
	}
	return "enhanced: " + prompt, nil
}

func (m *mockAPIClient) ExtractConsistencyData(ctx context.Context, imageURL string) (*domain.ConsistencyData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extracts = append(m.extracts, imageURL)
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	return &domain.ConsistencyData{
		StyleFingerprint: "cel shading",
		ColorPalette:     []string{"orange", "gold"},
		LightingProfile:  "golden hour",
		CompositionStyle: "wide shot",
	}, nil
}

func (m *mockAPIClient) decrement() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func (m *mockAPIClient) inputFor(frameID string) (GenerateImageInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.inputs {
		if in.FrameID == frameID {
			return in, true
		}
	}
	return GenerateImageInput{}, false
}

func (m *mockAPIClient) observedMaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func frameReq(sceneID, description string) domain.FrameRequest {
	return domain.FrameRequest{SceneID: sceneID, SceneDescription: description}
}
