package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

// Model output is not schema-checked, so scalar fields are decoded loosely:
// numbers may arrive quoted and labels may arrive as bare numbers. Values
// that cannot be read as the wanted kind decode to the zero value.

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		*s = flexString(x)
	case float64, bool:
		*s = flexString(bytes.TrimSpace(b))
	default:
		*s = ""
	}
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*f = flexFloat(x)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			n = 0
		}
		*f = flexFloat(n)
	default:
		*f = 0
	}
	return nil
}

type flexInt int

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*i = flexInt(math.Round(float64(f)))
	return nil
}

func flexStrings(in []flexString) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

type segmentJSON struct {
	Speaker   flexString `json:"speaker"`
	Timestamp flexString `json:"timestamp"`
	Text      flexString `json:"text"`
}

type transcriptJSON struct {
	Text         flexString    `json:"transcriptText"`
	Segments     []segmentJSON `json:"transcript"`
	Language     flexString    `json:"language"`
	SpeakerCount flexInt       `json:"speakerCount"`
}

func (t *Transcript) UnmarshalJSON(b []byte) error {
	var w transcriptJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*t = Transcript{
		Text:         string(w.Text),
		Language:     string(w.Language),
		SpeakerCount: int(w.SpeakerCount),
	}
	if w.Segments != nil {
		t.Segments = make([]models.Segment, len(w.Segments))
		for i, s := range w.Segments {
			t.Segments[i] = models.Segment{
				Speaker:   string(s.Speaker),
				Timestamp: string(s.Timestamp),
				Text:      string(s.Text),
			}
		}
	}
	return nil
}

type actionItemJSON struct {
	Task     flexString `json:"task"`
	Assignee flexString `json:"assignee"`
	DueDate  flexString `json:"dueDate"`
	Priority flexString `json:"priority"`
}

type quickJSON struct {
	Summary struct {
		Brief flexString `json:"brief"`
	} `json:"summary"`
	ActionItems []actionItemJSON `json:"actionItems"`
	Metadata    struct {
		SuggestedTitle flexString `json:"suggestedTitle"`
		DetectedType   flexString `json:"detectedType"`
		Confidence     flexFloat  `json:"confidence"`
	} `json:"metadata"`
}

func (q *QuickAnalysis) UnmarshalJSON(b []byte) error {
	var w quickJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*q = QuickAnalysis{}
	q.Summary.Brief = string(w.Summary.Brief)
	q.Metadata.SuggestedTitle = string(w.Metadata.SuggestedTitle)
	q.Metadata.DetectedType = string(w.Metadata.DetectedType)
	q.Metadata.Confidence = float64(w.Metadata.Confidence)
	if w.ActionItems != nil {
		q.ActionItems = make([]models.ActionItem, len(w.ActionItems))
		for i, a := range w.ActionItems {
			q.ActionItems[i] = models.ActionItem{
				Task:     string(a.Task),
				Assignee: string(a.Assignee),
				DueDate:  string(a.DueDate),
				Priority: string(a.Priority),
			}
		}
	}
	return nil
}

type keyPointJSON struct {
	Point     flexString `json:"point"`
	Timestamp flexString `json:"timestamp"`
}

type decisionJSON struct {
	Decision  flexString `json:"decision"`
	Timestamp flexString `json:"timestamp"`
}

type deepJSON struct {
	Summary struct {
		Detailed flexString `json:"detailed"`
	} `json:"summary"`
	KeyPoints []keyPointJSON `json:"keyPoints"`
	Decisions []decisionJSON `json:"decisions"`
	Sentiment struct {
		Overall flexString `json:"overall"`
		Score   flexFloat  `json:"score"`
	} `json:"sentiment"`
	Topics    []flexString `json:"topics"`
	Questions []flexString `json:"questions"`
	NextSteps []flexString `json:"nextSteps"`
}

func (d *DeepAnalysis) UnmarshalJSON(b []byte) error {
	var w deepJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = DeepAnalysis{
		Sentiment: models.Sentiment{
			Overall: string(w.Sentiment.Overall),
			Score:   float64(w.Sentiment.Score),
		},
		Topics:    flexStrings(w.Topics),
		Questions: flexStrings(w.Questions),
		NextSteps: flexStrings(w.NextSteps),
	}
	d.Summary.Detailed = string(w.Summary.Detailed)
	if w.KeyPoints != nil {
		d.KeyPoints = make([]models.KeyPoint, len(w.KeyPoints))
		for i, k := range w.KeyPoints {
			d.KeyPoints[i] = models.KeyPoint{Point: string(k.Point), Timestamp: string(k.Timestamp)}
		}
	}
	if w.Decisions != nil {
		d.Decisions = make([]models.Decision, len(w.Decisions))
		for i, x := range w.Decisions {
			d.Decisions[i] = models.Decision{Decision: string(x.Decision), Timestamp: string(x.Timestamp)}
		}
	}
	return nil
}
