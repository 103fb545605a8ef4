// Package analysis runs the three AI stages over a recording: transcription,
// quick analysis and deep analysis.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/voicepipe/internal/ai"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

const (
	maxTitleLen          = 200
	maxBriefLen          = 2000
	maxDetailedLen       = 10000
	defaultAudioMimeType = "audio/mp4"
	defaultRecordingType = "personal"
	rawPreviewLen        = 200
)

var (
	transcribeParams = models.GenerationParams{Temperature: 0.1, MaxOutputTokens: 8192}
	quickParams      = models.GenerationParams{Temperature: 0.3, MaxOutputTokens: 2048}
	deepParams       = models.GenerationParams{Temperature: 0.4, MaxOutputTokens: 8192}
)

var audioMimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
}

// MimeTypeFor returns the audio MIME type for a file name and whether the
// extension is a supported audio format. Unsupported names get audio/mp4.
func MimeTypeFor(filename string) (string, bool) {
	if mt, ok := audioMimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt, true
	}
	return defaultAudioMimeType, false
}

// Transcript is the decoded stage 1 output.
type Transcript struct {
	Text         string           `json:"transcriptText"`
	Segments     []models.Segment `json:"transcript"`
	Language     string           `json:"language"`
	SpeakerCount int              `json:"speakerCount"`
}

// Fields converts t into the persisted transcript fields.
func (t Transcript) Fields() *models.TranscriptFields {
	return &models.TranscriptFields{
		Text:         t.Text,
		Segments:     t.Segments,
		Language:     t.Language,
		SpeakerCount: t.SpeakerCount,
	}
}

// QuickAnalysis is the decoded stage 2 output.
type QuickAnalysis struct {
	Summary struct {
		Brief string `json:"brief"`
	} `json:"summary"`
	ActionItems []models.ActionItem `json:"actionItems"`
	Metadata    struct {
		SuggestedTitle string  `json:"suggestedTitle"`
		DetectedType   string  `json:"detectedType"`
		Confidence     float64 `json:"confidence"`
	} `json:"metadata"`
}

// Fields converts q into the persisted quick-analysis fields.
func (q QuickAnalysis) Fields() *models.QuickFields {
	return &models.QuickFields{
		SummaryBrief: q.Summary.Brief,
		ActionItems:  q.ActionItems,
		Title:        q.Metadata.SuggestedTitle,
		AnalysisType: q.Metadata.DetectedType,
		Confidence:   q.Metadata.Confidence,
	}
}

// DeepAnalysis is the decoded stage 3 output.
type DeepAnalysis struct {
	Summary struct {
		Detailed string `json:"detailed"`
	} `json:"summary"`
	KeyPoints []models.KeyPoint `json:"keyPoints"`
	Decisions []models.Decision `json:"decisions"`
	Sentiment models.Sentiment  `json:"sentiment"`
	Topics    []string          `json:"topics"`
	Questions []string          `json:"questions"`
	NextSteps []string          `json:"nextSteps"`
}

// Fields converts d into the persisted deep-analysis fields.
func (d DeepAnalysis) Fields() *models.DeepFields {
	return &models.DeepFields{
		SummaryDetailed: d.Summary.Detailed,
		KeyPoints:       d.KeyPoints,
		Decisions:       d.Decisions,
		Sentiment:       d.Sentiment,
		Topics:          d.Topics,
		Questions:       d.Questions,
		NextSteps:       d.NextSteps,
	}
}

// Executor runs each stage as one logical AI call.
type Executor struct {
	caller ai.Caller
	now    func() time.Time
}

func NewExecutor(caller ai.Caller) *Executor {
	return &Executor{caller: caller, now: time.Now}
}

// Transcribe turns audio into a transcript. There is no fallback for this
// stage: a response that cannot be decoded, or that holds no text at all,
// fails with ai.ErrMalformedResponse.
func (e *Executor) Transcribe(ctx context.Context, audio []byte, mimeType string, durationSeconds int) (Transcript, error) {
	if mimeType == "" {
		mimeType = defaultAudioMimeType
	}
	text, err := e.caller.Call(ctx, models.GenerateRequest{
		Modality:    models.ModalityAudio,
		Instruction: transcriptionPrompt(e.now(), durationSeconds),
		Audio:       audio,
		MimeType:    mimeType,
		Params:      transcribeParams,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribing audio: %w", err)
	}

	p := parse[Transcript](text)
	if !p.Structured() {
		slog.Warn("transcription response not decodable", "raw_preview", truncateString(p.Raw, rawPreviewLen))
		return Transcript{}, fmt.Errorf("transcribing audio: %w", ai.ErrMalformedResponse)
	}

	t := p.Value
	if strings.TrimSpace(t.Text) == "" {
		t.Text = joinSegments(t.Segments)
	}
	if t.Text == "" {
		return Transcript{}, fmt.Errorf("transcribing audio: %w: empty transcript", ai.ErrMalformedResponse)
	}
	if t.SpeakerCount == 0 {
		t.SpeakerCount = countSpeakers(t.Segments)
	}
	return t, nil
}

// QuickAnalyze produces the preview. A response that cannot be decoded is
// returned as a raw fallback rather than an error.
func (e *Executor) QuickAnalyze(ctx context.Context, transcript, language string) (Parsed[QuickAnalysis], error) {
	text, err := e.caller.Call(ctx, models.GenerateRequest{
		Modality:    models.ModalityText,
		Instruction: quickAnalysisPrompt(e.now(), transcript, language),
		Params:      quickParams,
	})
	if err != nil {
		return Parsed[QuickAnalysis]{}, fmt.Errorf("quick analysis: %w", err)
	}

	p := parse[QuickAnalysis](text)
	if p.Structured() {
		q := &p.Value
		q.Metadata.Confidence = clamp01(q.Metadata.Confidence)
		q.Metadata.SuggestedTitle = truncateString(q.Metadata.SuggestedTitle, maxTitleLen)
		q.Summary.Brief = truncateString(q.Summary.Brief, maxBriefLen)
	}
	return p, nil
}

// DeepAnalyze produces the full review. A response that cannot be decoded is
// returned as a raw fallback rather than an error.
func (e *Executor) DeepAnalyze(ctx context.Context, transcript, language, recordingType string) (Parsed[DeepAnalysis], error) {
	if recordingType == "" {
		recordingType = defaultRecordingType
	}
	text, err := e.caller.Call(ctx, models.GenerateRequest{
		Modality:    models.ModalityText,
		Instruction: deepAnalysisPrompt(e.now(), transcript, language, recordingType),
		Params:      deepParams,
	})
	if err != nil {
		return Parsed[DeepAnalysis]{}, fmt.Errorf("deep analysis: %w", err)
	}

	p := parse[DeepAnalysis](text)
	if p.Structured() {
		d := &p.Value
		d.Summary.Detailed = truncateString(d.Summary.Detailed, maxDetailedLen)
		d.Sentiment.Score = clampSigned(d.Sentiment.Score)
	}
	return p, nil
}

func joinSegments(segs []models.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func countSpeakers(segs []models.Segment) int {
	seen := make(map[string]struct{})
	for _, s := range segs {
		if s.Speaker != "" {
			seen[s.Speaker] = struct{}{}
		}
	}
	if len(seen) == 0 && len(segs) > 0 {
		return 1
	}
	return len(seen)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// truncateString truncates s to maxBytes without splitting a UTF-8 character.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
