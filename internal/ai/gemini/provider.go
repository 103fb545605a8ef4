// Package gemini implements models.AIProvider against the Gemini
// generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/voicepipe/internal/config"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

// Sentinel errors for Gemini transport failures.
var (
	ErrUnreachable = errors.New("gemini unreachable")
	ErrTimeout     = errors.New("gemini request timeout")
)

const maxErrorBody = 512

// APIError is returned for any non-2xx response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini: status %d", e.Code)
	}
	return fmt.Sprintf("gemini: status %d: %s", e.Code, e.Message)
}

func (e *APIError) StatusCode() int { return e.Code }

// Provider implements models.AIProvider using Gemini.
type Provider struct {
	cfg    config.GeminiConfig
	client *http.Client
}

// NewProvider creates a Gemini provider. Per-call deadlines come from the
// request context.
func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("encoding gemini request: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent?%s",
		strings.TrimRight(p.cfg.BaseURL, "/"),
		url.PathEscape(p.cfg.Model),
		url.Values{"key": {p.cfg.APIKey}}.Encode(),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apiError(resp)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}
	return out.text(), nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// text concatenates the text parts of the first candidate.
func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func buildRequest(req models.GenerateRequest) generateRequest {
	parts := []part{{Text: req.Instruction}}
	if req.Modality == models.ModalityAudio {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: req.MimeType,
			Data:     base64.StdEncoding.EncodeToString(req.Audio),
		}})
	}

	gr := generateRequest{Contents: []content{{Role: "user", Parts: parts}}}

	p := req.Params
	if p != (models.GenerationParams{}) {
		gc := &generationConfig{TopK: p.TopK, MaxOutputTokens: p.MaxOutputTokens}
		if p.Temperature != 0 {
			gc.Temperature = &p.Temperature
		}
		if p.TopP != 0 {
			gc.TopP = &p.TopP
		}
		gr.GenerationConfig = gc
	}
	return gr
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	return &APIError{Code: resp.StatusCode, Message: msg}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

var _ models.AIProvider = (*Provider)(nil)
