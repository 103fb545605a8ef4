package models

import "time"

// Update is a single persisted transition: the new status plus the fields
// produced by the stage that just finished. Stores merge Fields into the
// existing document; fields absent from the update are left untouched.
type Update struct {
	Status        JobStatus
	AnalysisStage string

	Progress   *float64
	Transcript *TranscriptFields
	Quick      *QuickFields
	Deep       *DeepFields
	QuickNotes string
	DeepNotes  string

	Error       string
	FailedStage JobStatus
}

// TranscriptFields are written when transcription succeeds.
type TranscriptFields struct {
	Text         string
	Segments     []Segment
	Language     string
	SpeakerCount int
}

// QuickFields are written when the quick analysis succeeds.
type QuickFields struct {
	SummaryBrief string
	ActionItems  []ActionItem
	Title        string
	AnalysisType string
	Confidence   float64
}

// DeepFields are written when the deep analysis succeeds.
type DeepFields struct {
	SummaryDetailed string
	KeyPoints       []KeyPoint
	Decisions       []Decision
	Sentiment       Sentiment
	Topics          []string
	Questions       []string
	NextSteps       []string
}

// Fields returns the document keys set by u, always including status and
// updatedAt.
func (u Update) Fields(now time.Time) map[string]any {
	f := map[string]any{
		"status":    u.Status,
		"updatedAt": now,
	}
	if u.AnalysisStage != "" {
		f["analysisStage"] = u.AnalysisStage
	}
	if u.Progress != nil {
		f["transcriptProgress"] = *u.Progress
	}
	if t := u.Transcript; t != nil {
		f["transcriptText"] = t.Text
		f["transcript"] = nonNil(t.Segments)
		f["language"] = t.Language
		f["speakerCount"] = t.SpeakerCount
	}
	if q := u.Quick; q != nil {
		f["summaryBrief"] = q.SummaryBrief
		f["actionItems"] = nonNil(q.ActionItems)
		f["title"] = q.Title
		f["analysisType"] = q.AnalysisType
		f["confidence"] = q.Confidence
	}
	if d := u.Deep; d != nil {
		f["summaryDetailed"] = d.SummaryDetailed
		f["keyPoints"] = nonNil(d.KeyPoints)
		f["decisions"] = nonNil(d.Decisions)
		f["sentiment"] = d.Sentiment
		f["topics"] = nonNil(d.Topics)
		f["questions"] = nonNil(d.Questions)
		f["nextSteps"] = nonNil(d.NextSteps)
	}
	if u.QuickNotes != "" {
		f["quickNotes"] = u.QuickNotes
	}
	if u.DeepNotes != "" {
		f["deepNotes"] = u.DeepNotes
	}
	if u.Error != "" {
		f["error"] = u.Error
	}
	if u.FailedStage != "" {
		f["failedStage"] = u.FailedStage
	}
	return f
}

// Apply merges u into r in place. It is the in-memory equivalent of the
// document stores' partial update.
func (u Update) Apply(r *Recording, now time.Time) {
	r.Status = u.Status
	r.UpdatedAt = now
	if u.AnalysisStage != "" {
		r.AnalysisStage = u.AnalysisStage
	}
	if u.Progress != nil {
		r.TranscriptProgress = *u.Progress
	}
	if t := u.Transcript; t != nil {
		r.TranscriptText = t.Text
		r.Transcript = nonNil(t.Segments)
		r.Language = t.Language
		r.SpeakerCount = t.SpeakerCount
	}
	if q := u.Quick; q != nil {
		c := q.Confidence
		r.SummaryBrief = q.SummaryBrief
		r.ActionItems = nonNil(q.ActionItems)
		r.Title = q.Title
		r.AnalysisType = q.AnalysisType
		r.Confidence = &c
	}
	if d := u.Deep; d != nil {
		s := d.Sentiment
		r.SummaryDetailed = d.SummaryDetailed
		r.KeyPoints = nonNil(d.KeyPoints)
		r.Decisions = nonNil(d.Decisions)
		r.Sentiment = &s
		r.Topics = nonNil(d.Topics)
		r.Questions = nonNil(d.Questions)
		r.NextSteps = nonNil(d.NextSteps)
	}
	if u.QuickNotes != "" {
		r.QuickNotes = u.QuickNotes
	}
	if u.DeepNotes != "" {
		r.DeepNotes = u.DeepNotes
	}
	if u.Error != "" {
		r.Error = u.Error
	}
	if u.FailedStage != "" {
		r.FailedStage = u.FailedStage
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
