package models

import "time"

// Recording is the document the pipeline writes for one uploaded audio file.
// The mobile client polls it and renders whatever stage fields are present.
type Recording struct {
	ID              string    `json:"id"              bson:"_id"`
	UserID          string    `json:"userId"          bson:"userId"`
	MimeType        string    `json:"mimeType"        bson:"mimeType"`
	DurationSeconds int       `json:"durationSeconds" bson:"durationSeconds"`
	Status          JobStatus `json:"status"          bson:"status"`
	AnalysisStage   string    `json:"analysisStage,omitempty" bson:"analysisStage,omitempty"`

	// Stage 1: transcription.
	TranscriptText     string    `json:"transcriptText,omitempty"     bson:"transcriptText,omitempty"`
	Transcript         []Segment `json:"transcript,omitempty"         bson:"transcript,omitempty"`
	Language           string    `json:"language,omitempty"           bson:"language,omitempty"`
	SpeakerCount       int       `json:"speakerCount,omitempty"       bson:"speakerCount,omitempty"`
	TranscriptProgress float64   `json:"transcriptProgress"           bson:"transcriptProgress"`

	// Stage 2: quick analysis.
	SummaryBrief string       `json:"summaryBrief,omitempty" bson:"summaryBrief,omitempty"`
	ActionItems  []ActionItem `json:"actionItems,omitempty"  bson:"actionItems,omitempty"`
	Title        string       `json:"title,omitempty"        bson:"title,omitempty"`
	AnalysisType string       `json:"analysisType,omitempty" bson:"analysisType,omitempty"`
	Confidence   *float64     `json:"confidence,omitempty"   bson:"confidence,omitempty"`
	QuickNotes   string       `json:"quickNotes,omitempty"   bson:"quickNotes,omitempty"`

	// Stage 3: deep analysis.
	SummaryDetailed string     `json:"summaryDetailed,omitempty" bson:"summaryDetailed,omitempty"`
	KeyPoints       []KeyPoint `json:"keyPoints,omitempty"       bson:"keyPoints,omitempty"`
	Decisions       []Decision `json:"decisions,omitempty"       bson:"decisions,omitempty"`
	Sentiment       *Sentiment `json:"sentiment,omitempty"       bson:"sentiment,omitempty"`
	Topics          []string   `json:"topics,omitempty"          bson:"topics,omitempty"`
	Questions       []string   `json:"questions,omitempty"       bson:"questions,omitempty"`
	NextSteps       []string   `json:"nextSteps,omitempty"       bson:"nextSteps,omitempty"`
	DeepNotes       string     `json:"deepNotes,omitempty"       bson:"deepNotes,omitempty"`

	Error       string    `json:"error,omitempty"       bson:"error,omitempty"`
	FailedStage JobStatus `json:"failedStage,omitempty" bson:"failedStage,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Segment is one timestamped piece of the transcript.
type Segment struct {
	Speaker   string `json:"speaker,omitempty" bson:"speaker,omitempty"`
	Timestamp string `json:"timestamp"         bson:"timestamp"`
	Text      string `json:"text"              bson:"text"`
}

type ActionItem struct {
	Task     string `json:"task"               bson:"task"`
	Assignee string `json:"assignee,omitempty" bson:"assignee,omitempty"`
	DueDate  string `json:"dueDate,omitempty"  bson:"dueDate,omitempty"`
	Priority string `json:"priority,omitempty" bson:"priority,omitempty"`
}

type KeyPoint struct {
	Point     string `json:"point"               bson:"point"`
	Timestamp string `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

type Decision struct {
	Decision  string `json:"decision"            bson:"decision"`
	Timestamp string `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

type Sentiment struct {
	Overall string  `json:"overall"         bson:"overall"`
	Score   float64 `json:"score,omitempty" bson:"score,omitempty"`
}
