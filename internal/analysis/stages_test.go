package analysis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kiranshivaraju/voicepipe/internal/ai"
	"github.com/kiranshivaraju/voicepipe/internal/ai/mock"
	"github.com/kiranshivaraju/voicepipe/internal/analysis"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller satisfies ai.Caller and records the last request.
type fakeCaller struct {
	text string
	err  error
	last models.GenerateRequest
}

func (f *fakeCaller) Call(_ context.Context, req models.GenerateRequest) (string, error) {
	f.last = req
	return f.text, f.err
}

func TestTranscribe_Structured(t *testing.T) {
	fc := &fakeCaller{text: mock.TranscriptJSON}
	e := analysis.NewExecutor(fc)

	tr, err := e.Transcribe(context.Background(), []byte("audio"), "audio/mpeg", 42)
	require.NoError(t, err)

	assert.Contains(t, tr.Text, "ship the beta")
	assert.Len(t, tr.Segments, 2)
	assert.Equal(t, "en", tr.Language)
	assert.Equal(t, 2, tr.SpeakerCount)

	assert.Equal(t, models.ModalityAudio, fc.last.Modality)
	assert.Equal(t, "audio/mpeg", fc.last.MimeType)
	assert.Equal(t, []byte("audio"), fc.last.Audio)
	assert.Contains(t, fc.last.Instruction, "42 seconds")
}

func TestTranscribe_DefaultMimeType(t *testing.T) {
	fc := &fakeCaller{text: mock.TranscriptJSON}
	_, err := analysis.NewExecutor(fc).Transcribe(context.Background(), []byte("a"), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "audio/mp4", fc.last.MimeType)
}

func TestTranscribe_RebuildsTextFromSegments(t *testing.T) {
	fc := &fakeCaller{text: `{"transcriptText":"","transcript":[{"speaker":"A","timestamp":"00:00","text":"first"},{"speaker":"B","timestamp":"00:02","text":"second"}],"language":"en"}`}

	tr, err := analysis.NewExecutor(fc).Transcribe(context.Background(), []byte("a"), "audio/mp4", 0)
	require.NoError(t, err)
	assert.Equal(t, "first second", tr.Text)
	assert.Equal(t, 2, tr.SpeakerCount)
}

func TestTranscribe_MalformedIsFatal(t *testing.T) {
	fc := &fakeCaller{text: "Sorry, the audio was unclear."}

	_, err := analysis.NewExecutor(fc).Transcribe(context.Background(), []byte("a"), "audio/mp4", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrMalformedResponse))
}

func TestTranscribe_EmptyTranscriptIsMalformed(t *testing.T) {
	fc := &fakeCaller{text: `{"transcriptText":"","transcript":[],"language":"en"}`}

	_, err := analysis.NewExecutor(fc).Transcribe(context.Background(), []byte("a"), "audio/mp4", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrMalformedResponse))
}

func TestTranscribe_CallerError(t *testing.T) {
	fc := &fakeCaller{err: ai.ErrBackendUnavailable}

	_, err := analysis.NewExecutor(fc).Transcribe(context.Background(), []byte("a"), "audio/mp4", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrBackendUnavailable))
}

func TestQuickAnalyze_Structured(t *testing.T) {
	fc := &fakeCaller{text: mock.QuickJSON}

	p, err := analysis.NewExecutor(fc).QuickAnalyze(context.Background(), "transcript text", "en")
	require.NoError(t, err)
	require.True(t, p.Structured())

	f := p.Value.Fields()
	assert.Equal(t, "Team agreed to ship the beta on Friday.", f.SummaryBrief)
	assert.Equal(t, "Beta release plan", f.Title)
	assert.Equal(t, "meeting", f.AnalysisType)
	assert.InDelta(t, 0.9, f.Confidence, 1e-9)
	require.Len(t, f.ActionItems, 1)
	assert.Equal(t, "Maria", f.ActionItems[0].Assignee)

	assert.Equal(t, models.ModalityText, fc.last.Modality)
	assert.Equal(t, 2048, fc.last.Params.MaxOutputTokens)
	assert.InDelta(t, 0.3, fc.last.Params.Temperature, 1e-9)
	assert.Contains(t, fc.last.Instruction, "transcript text")
}

func TestQuickAnalyze_ClampsConfidence(t *testing.T) {
	fc := &fakeCaller{text: `{"summary":{"brief":"b"},"actionItems":[],"metadata":{"confidence":7}}`}

	p, err := analysis.NewExecutor(fc).QuickAnalyze(context.Background(), "t", "en")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Value.Metadata.Confidence)
}

func TestQuickAnalyze_RawFallback(t *testing.T) {
	fc := &fakeCaller{text: "Brief: the team will ship Friday."}

	p, err := analysis.NewExecutor(fc).QuickAnalyze(context.Background(), "t", "en")
	require.NoError(t, err)
	assert.False(t, p.Structured())
	assert.Equal(t, "Brief: the team will ship Friday.", p.Raw)
}

func TestQuickAnalyze_CallerError(t *testing.T) {
	fc := &fakeCaller{err: ai.ErrRequestRejected}

	_, err := analysis.NewExecutor(fc).QuickAnalyze(context.Background(), "t", "en")
	assert.True(t, errors.Is(err, ai.ErrRequestRejected))
}

func TestDeepAnalyze_Structured(t *testing.T) {
	fc := &fakeCaller{text: mock.DeepJSON}

	p, err := analysis.NewExecutor(fc).DeepAnalyze(context.Background(), "t", "en", "meeting")
	require.NoError(t, err)
	require.True(t, p.Structured())

	f := p.Value.Fields()
	assert.NotEmpty(t, f.SummaryDetailed)
	assert.Len(t, f.KeyPoints, 1)
	assert.Len(t, f.Decisions, 1)
	assert.Equal(t, "positive", f.Sentiment.Overall)
	assert.Equal(t, []string{"release"}, f.Topics)

	assert.Equal(t, 8192, fc.last.Params.MaxOutputTokens)
	assert.Contains(t, fc.last.Instruction, "meeting recording")
}

func TestDeepAnalyze_DefaultsRecordingType(t *testing.T) {
	fc := &fakeCaller{text: mock.DeepJSON}

	_, err := analysis.NewExecutor(fc).DeepAnalyze(context.Background(), "t", "en", "")
	require.NoError(t, err)
	assert.Contains(t, fc.last.Instruction, "personal recording")
}

func TestDeepAnalyze_RawFallback(t *testing.T) {
	fc := &fakeCaller{text: "A long narrative with no JSON."}

	p, err := analysis.NewExecutor(fc).DeepAnalyze(context.Background(), "t", "en", "lecture")
	require.NoError(t, err)
	assert.False(t, p.Structured())
	assert.Equal(t, "A long narrative with no JSON.", p.Raw)
}

func TestMimeTypeFor(t *testing.T) {
	tests := []struct {
		name      string
		want      string
		supported bool
	}{
		{"memo.mp3", "audio/mpeg", true},
		{"memo.M4A", "audio/mp4", true},
		{"memo.wav", "audio/wav", true},
		{"memo.aac", "audio/aac", true},
		{"memo.flac", "audio/flac", true},
		{"memo.ogg", "audio/ogg", true},
		{"memo.txt", "audio/mp4", false},
		{"memo", "audio/mp4", false},
	}
	for _, tt := range tests {
		got, ok := analysis.MimeTypeFor(tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.supported, ok, tt.name)
	}
}

func TestTranscribe_AcceptsDriftedScalarTypes(t *testing.T) {
	fc := &fakeCaller{text: "```json\n" +
		`{"transcriptText":"Buy milk tomorrow","transcript":[{"speaker":"Speaker 1","timestamp":0,"text":"Buy milk tomorrow"}],"language":"en","speakerCount":"1"}` +
		"\n```"}

	tr, err := analysis.NewExecutor(fc).Transcribe(context.Background(), []byte("audio"), "audio/mpeg", 3)
	require.NoError(t, err)

	assert.Equal(t, "Buy milk tomorrow", tr.Text)
	assert.Equal(t, 1, tr.SpeakerCount)
	require.Len(t, tr.Segments, 1)
	assert.Equal(t, "0", tr.Segments[0].Timestamp)
}

func TestTranscribe_UnreadableSpeakerCountFallsBackToSegments(t *testing.T) {
	fc := &fakeCaller{text: `{"transcriptText":"hi there","transcript":[{"speaker":"A","timestamp":"00:00","text":"hi"},{"speaker":"B","timestamp":"00:01","text":"there"}],"speakerCount":"two"}`}

	tr, err := analysis.NewExecutor(fc).Transcribe(context.Background(), []byte("audio"), "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.SpeakerCount)
}

func TestQuickAnalyze_AcceptsDriftedScalarTypes(t *testing.T) {
	fc := &fakeCaller{text: "```json\n" +
		`{"summary":{"brief":"Pick up groceries."},"actionItems":[{"task":"Buy milk","priority":1}],"metadata":{"suggestedTitle":"Errands","detectedType":"personal","confidence":"0.9"}}` +
		"\n```"}

	p, err := analysis.NewExecutor(fc).QuickAnalyze(context.Background(), "Buy milk tomorrow", "en")
	require.NoError(t, err)
	require.True(t, p.Structured())

	f := p.Value.Fields()
	assert.Equal(t, "Pick up groceries.", f.SummaryBrief)
	assert.Equal(t, "Errands", f.Title)
	assert.InDelta(t, 0.9, f.Confidence, 1e-9)
	require.Len(t, f.ActionItems, 1)
	assert.Equal(t, "1", f.ActionItems[0].Priority)
}

func TestDeepAnalyze_AcceptsDriftedScalarTypes(t *testing.T) {
	fc := &fakeCaller{text: `{"summary":{"detailed":"d"},"keyPoints":[{"point":"p","timestamp":12}],"decisions":[{"decision":"x","timestamp":null}],"sentiment":{"overall":"negative","score":"-0.4"},"topics":["a",2],"questions":[],"nextSteps":["n"]}`}

	p, err := analysis.NewExecutor(fc).DeepAnalyze(context.Background(), "t", "en", "meeting")
	require.NoError(t, err)
	require.True(t, p.Structured())

	f := p.Value.Fields()
	assert.Equal(t, "12", f.KeyPoints[0].Timestamp)
	assert.Equal(t, "", f.Decisions[0].Timestamp)
	assert.InDelta(t, -0.4, f.Sentiment.Score, 1e-9)
	assert.Equal(t, []string{"a", "2"}, f.Topics)
}
