package analysis

import (
	"fmt"
	"time"
)

const dateLayout = "January 2, 2006"

func transcriptionPrompt(now time.Time, durationSeconds int) string {
	duration := "unknown"
	if durationSeconds > 0 {
		duration = fmt.Sprintf("%d seconds", durationSeconds)
	}
	return fmt.Sprintf(`You are a precise transcription assistant. Today is %s.
Transcribe the attached audio recording (duration: %s) verbatim in its original language.
Identify distinct speakers as "Speaker 1", "Speaker 2", and so on, and timestamp each segment as mm:ss.

Respond with exactly one JSON block and nothing else:
`+"```json"+`
{
  "transcriptText": "full transcript as plain text",
  "transcript": [{"speaker": "Speaker 1", "timestamp": "00:00", "text": "..."}],
  "language": "ISO 639-1 code of the spoken language",
  "speakerCount": 1
}
`+"```", now.Format(dateLayout), duration)
}

func quickAnalysisPrompt(now time.Time, transcript, language string) string {
	return fmt.Sprintf(`You are an assistant that turns voice memos into quick, actionable previews. Today is %s.
The transcript below is in language %q. Write every field in that language.

Classify the recording as one of: meeting, lecture, interview, personal, brainstorm.
Write a 1-2 sentence brief summary, a short title, and extract concrete action items.
Resolve relative dates such as "tomorrow" against today's date.

Respond with exactly one JSON block and nothing else:
`+"```json"+`
{
  "summary": {"brief": "1-2 sentence summary"},
  "actionItems": [{"task": "...", "assignee": "name or empty", "dueDate": "YYYY-MM-DD or empty", "priority": "high|medium|low"}],
  "metadata": {"suggestedTitle": "...", "detectedType": "meeting", "confidence": 0.0}
}
`+"```"+`

Transcript:
%s`, now.Format(dateLayout), language, transcript)
}

func deepAnalysisPrompt(now time.Time, transcript, language, recordingType string) string {
	if recordingType == "" {
		recordingType = "personal"
	}
	return fmt.Sprintf(`You are an analyst producing a thorough review of a %s recording. Today is %s.
The transcript below is in language %q. Write every field in that language.

Cover the key points with timestamps, the decisions made, the overall sentiment,
the main topics, open questions, and recommended next steps.

Respond with exactly one JSON block and nothing else:
`+"```json"+`
{
  "summary": {"detailed": "multi-paragraph summary"},
  "keyPoints": [{"point": "...", "timestamp": "mm:ss"}],
  "decisions": [{"decision": "...", "timestamp": "mm:ss"}],
  "sentiment": {"overall": "positive|neutral|negative|mixed", "score": 0.0},
  "topics": ["..."],
  "questions": ["..."],
  "nextSteps": ["..."]
}
`+"```"+`

Transcript:
%s`, recordingType, now.Format(dateLayout), language, transcript)
}
