// Package models contains shared data models used across the voicepipe codebase.
package models

import "context"

// AIProvider is the core interface that all generative-AI integrations must implement.
// Callers go through ai.Client, which adds rate limiting and retries on top
// of this interface.
type AIProvider interface {
	// Generate sends one request and returns the model's free-form text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// Name returns the provider identifier (e.g., "gemini", "mock").
	Name() string
}

// Modality selects what kind of content accompanies the instruction.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// GenerateRequest is the input to a single AI call.
type GenerateRequest struct {
	Modality    Modality
	Instruction string
	Audio       []byte // set when Modality is audio
	MimeType    string // MIME type of Audio
	Params      GenerationParams
}

// GenerationParams are the sampling and budget knobs sent with each request.
// Zero values mean "provider default".
type GenerationParams struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}
