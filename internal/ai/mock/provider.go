package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

// Canned responses returned by NewMockProvider, one per pipeline stage.
const (
	TranscriptJSON = "```json\n" + `{"transcriptText":"Let's ship the beta on Friday. Maria will write the release notes.","transcript":[{"speaker":"Speaker 1","timestamp":"00:00","text":"Let's ship the beta on Friday."},{"speaker":"Speaker 2","timestamp":"00:04","text":"Maria will write the release notes."}],"language":"en","speakerCount":2}` + "\n```"
	QuickJSON      = "```json\n" + `{"summary":{"brief":"Team agreed to ship the beta on Friday."},"actionItems":[{"task":"Write the release notes","assignee":"Maria","priority":"high"}],"metadata":{"suggestedTitle":"Beta release plan","detectedType":"meeting","confidence":0.9}}` + "\n```"
	DeepJSON       = "```json\n" + `{"summary":{"detailed":"The team reviewed the beta and agreed on a Friday release with Maria owning the notes."},"keyPoints":[{"point":"Beta ships Friday","timestamp":"00:00"}],"decisions":[{"decision":"Release on Friday","timestamp":"00:00"}],"sentiment":{"overall":"positive","score":0.7},"topics":["release"],"questions":[],"nextSteps":["Publish release notes"]}` + "\n```"
)

// Response is one scripted provider answer.
type Response struct {
	Text string
	Err  error
}

// MockProvider satisfies models.AIProvider for testing and local runs.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (string, error)

	mu    sync.Mutex
	calls []models.GenerateRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}

// Calls returns a copy of every request received so far.
func (m *MockProvider) Calls() []models.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GenerateRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of requests received so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// NewMockProvider returns a MockProvider that answers each stage with a
// well-formed canned response.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_:        "mock",
		GenerateFunc: cannedResponse,
	}
}

func cannedResponse(_ context.Context, req models.GenerateRequest) (string, error) {
	switch {
	case req.Modality == models.ModalityAudio:
		return TranscriptJSON, nil
	case strings.Contains(req.Instruction, "summaryDetailed") || strings.Contains(req.Instruction, `"detailed"`):
		return DeepJSON, nil
	case strings.Contains(req.Instruction, "Health check"):
		return "OK", nil
	default:
		return QuickJSON, nil
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// NewScriptedProvider returns a MockProvider that replays responses in order.
// Once the script is exhausted the last response repeats.
func NewScriptedProvider(responses ...Response) *MockProvider {
	var (
		mu sync.Mutex
		i  int
	)
	return &MockProvider{
		Name_: "mock-scripted",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(responses) == 0 {
				return "", nil
			}
			r := responses[i]
			if i < len(responses)-1 {
				i++
			}
			return r.Text, r.Err
		},
	}
}

// NewBlockingProvider returns a canned MockProvider whose calls block until
// release is closed or the call context ends.
func NewBlockingProvider(release <-chan struct{}) *MockProvider {
	return &MockProvider{
		Name_: "mock-blocking",
		GenerateFunc: func(ctx context.Context, req models.GenerateRequest) (string, error) {
			select {
			case <-release:
				return cannedResponse(ctx, req)
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
