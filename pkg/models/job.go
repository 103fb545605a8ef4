package models

// JobStatus is the pipeline status of a recording. Values are persisted
// verbatim and read by the mobile client.
type JobStatus string

const (
	JobStatusProcessing      JobStatus = "processing"
	JobStatusTranscribing    JobStatus = "transcribing"
	JobStatusTranscriptReady JobStatus = "transcript_ready"
	JobStatusAnalyzingQuick  JobStatus = "analyzing_quick"
	JobStatusPreviewReady    JobStatus = "preview_ready"
	JobStatusAnalyzingDeep   JobStatus = "analyzing_deep"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
)

// statusOrder is the forward-only stage order. failed is not ranked.
var statusOrder = map[JobStatus]int{
	JobStatusProcessing:      1,
	JobStatusTranscribing:    2,
	JobStatusTranscriptReady: 3,
	JobStatusAnalyzingQuick:  4,
	JobStatusPreviewReady:    5,
	JobStatusAnalyzingDeep:   6,
	JobStatusCompleted:       7,
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok || s == JobStatusFailed
}

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Status only advances; failed is reachable from any non-terminal status.
func CanTransition(from, to JobStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	return statusOrder[to] > statusOrder[from]
}

// Predecessors returns every status from which a transition to s is allowed.
// Stores use it to apply an update only while the persisted status still permits it.
func Predecessors(to JobStatus) []JobStatus {
	out := []JobStatus{}
	for _, from := range []JobStatus{
		JobStatusProcessing,
		JobStatusTranscribing,
		JobStatusTranscriptReady,
		JobStatusAnalyzingQuick,
		JobStatusPreviewReady,
		JobStatusAnalyzingDeep,
	} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
