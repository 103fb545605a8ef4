package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/voicepipe/internal/analysis"
	mw "github.com/kiranshivaraju/voicepipe/internal/api/middleware"
	"github.com/kiranshivaraju/voicepipe/internal/api/response"
	"github.com/kiranshivaraju/voicepipe/internal/pipeline"
	"github.com/kiranshivaraju/voicepipe/internal/store"
	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

const (
	// formOverhead is the allowance for multipart headers and small fields
	// on top of the audio size limit.
	formOverhead     = 1 << 20
	maxFieldBytes    = 256
	capacityRetry    = 30 * time.Second
	unavailableRetry = 5 * time.Second
	audioField       = "audio"
	recordingIDField = "recording_id"
	durationField    = "duration"
)

var recordingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Submitter hands an uploaded recording to the pipeline.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*models.Recording, error)
}

// RecordingReader reads persisted recordings.
type RecordingReader interface {
	GetRecording(ctx context.Context, id string) (*models.Recording, error)
}

// StatusReader reads the cached status of a recording.
type StatusReader interface {
	GetRecordingStatus(ctx context.Context, id string) (models.JobStatus, bool, error)
}

// UploadConfig bounds what the upload handler accepts.
type UploadConfig struct {
	TempDir        string
	MaxUploadBytes int64
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/recordings.
// The audio is streamed to a temp file; on success the pipeline owns it.
func NewUploadHandler(sub Submitter, cfg UploadConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+formOverhead)

		mr, err := r.MultipartReader()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Request must be multipart/form-data", nil)
			return
		}

		form, uerr := readUpload(mr, cfg)
		if uerr != nil {
			form.audio.Release()
			response.Error(w, uerr.status, uerr.code, uerr.message, nil)
			return
		}

		userID, _ := mw.GetUserID(r)
		if userID == "" {
			userID = mw.AnonymousUser
		}
		if form.recordingID == "" {
			form.recordingID = uuid.NewString()
		}

		rec, err := sub.Submit(r.Context(), pipeline.Submission{
			RecordingID:     form.recordingID,
			UserID:          userID,
			MimeType:        form.mimeType,
			DurationSeconds: form.duration,
			Audio:           form.audio,
		})
		if err != nil {
			form.audio.Release()
			writeSubmitError(w, form.recordingID, err)
			return
		}

		response.Accepted(w, rec)
	}
}

type uploadForm struct {
	recordingID string
	duration    int
	mimeType    string
	audio       *pipeline.TempAudio
}

type uploadError struct {
	status  int
	code    string
	message string
}

func badRequest(message string) *uploadError {
	return &uploadError{http.StatusBadRequest, "INVALID_REQUEST", message}
}

// readUpload walks the multipart parts. On error any audio already spooled
// is still returned so the caller can release it.
func readUpload(mr *multipart.Reader, cfg UploadConfig) (uploadForm, *uploadError) {
	var form uploadForm
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTooLarge(err) {
				return form, &uploadError{http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Upload exceeds the size limit"}
			}
			return form, badRequest("Malformed multipart body")
		}

		switch part.FormName() {
		case audioField:
			if form.audio != nil {
				return form, badRequest("Only one audio file is allowed")
			}
			mimeType, ok := analysis.MimeTypeFor(part.FileName())
			if !ok {
				return form, &uploadError{http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
					"Audio must be one of .mp3, .m4a, .wav, .aac, .flac, .ogg"}
			}
			audio, err := pipeline.NewTempAudio(cfg.TempDir, part, cfg.MaxUploadBytes)
			if err != nil {
				if errors.Is(err, pipeline.ErrAudioTooLarge) || isTooLarge(err) {
					return form, &uploadError{http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Audio exceeds the size limit"}
				}
				slog.Error("spooling upload failed", "error", err)
				return form, &uploadError{http.StatusInternalServerError, "INTERNAL_ERROR", "Could not store the upload"}
			}
			form.audio = audio
			form.mimeType = mimeType

		case recordingIDField:
			v, err := readField(part)
			if err != nil || !recordingIDPattern.MatchString(v) {
				return form, badRequest("recording_id must be 1-128 letters, digits, '-' or '_'")
			}
			form.recordingID = v

		case durationField:
			v, err := readField(part)
			if err != nil {
				return form, badRequest("Invalid duration")
			}
			if v == "" {
				continue
			}
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil || secs < 0 {
				return form, badRequest("duration must be a non-negative number of seconds")
			}
			form.duration = int(secs)
		}
	}

	if form.audio == nil {
		return form, badRequest("audio file is required")
	}
	if form.audio.Size() == 0 {
		return form, badRequest("audio file is empty")
	}
	return form, nil
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxFieldBytes {
		return "", errors.New("field too long")
	}
	return strings.TrimSpace(string(b)), nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeSubmitError(w http.ResponseWriter, recordingID string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrJobInProgress):
		response.Error(w, http.StatusConflict, "ANALYSIS_IN_PROGRESS",
			"This recording is already being analyzed", nil)
	case errors.Is(err, pipeline.ErrAlreadyAnalyzed):
		response.Error(w, http.StatusConflict, "ALREADY_ANALYZED",
			"This recording has already been analyzed", nil)
	case errors.Is(err, pipeline.ErrCapacityExceeded):
		response.Unavailable(w, "CAPACITY_EXCEEDED",
			"Too many recordings are being analyzed, try again shortly", capacityRetry)
	case errors.Is(err, pipeline.ErrShuttingDown):
		response.Unavailable(w, "SHUTTING_DOWN", "The server is shutting down", unavailableRetry)
	case errors.Is(err, store.ErrStoreUnavailable):
		response.Unavailable(w, "STORE_UNAVAILABLE", "The document store is not available", unavailableRetry)
	default:
		slog.Error("submitting recording failed", "recording_id", recordingID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// NewGetRecordingHandler returns an http.HandlerFunc for
// GET /api/v1/recordings/{recordingID}.
func NewGetRecordingHandler(st RecordingReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "recordingID")
		if !recordingIDPattern.MatchString(id) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid recording ID", nil)
			return
		}

		rec, err := st.GetRecording(r.Context(), id)
		if err != nil {
			writeReadError(w, id, err)
			return
		}
		response.JSON(w, rec)
	}
}

type statusResponse struct {
	RecordingID   string           `json:"recordingId"`
	Status        models.JobStatus `json:"status"`
	AnalysisStage string           `json:"analysisStage,omitempty"`
	Error         string           `json:"error,omitempty"`
	FailedStage   models.JobStatus `json:"failedStage,omitempty"`
}

// NewStatusHandler returns an http.HandlerFunc for
// GET /api/v1/recordings/{recordingID}/status. In-flight statuses come from
// the cache; terminal ones and cache misses are read from the store so the
// error details are included.
func NewStatusHandler(st RecordingReader, ca StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "recordingID")
		if !recordingIDPattern.MatchString(id) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid recording ID", nil)
			return
		}

		if ca != nil {
			status, found, err := ca.GetRecordingStatus(r.Context(), id)
			if err != nil {
				slog.Warn("status cache lookup failed", "recording_id", id, "error", err)
			}
			if found && !status.IsTerminal() {
				response.JSON(w, statusResponse{RecordingID: id, Status: status})
				return
			}
		}

		rec, err := st.GetRecording(r.Context(), id)
		if err != nil {
			writeReadError(w, id, err)
			return
		}
		response.JSON(w, statusResponse{
			RecordingID:   rec.ID,
			Status:        rec.Status,
			AnalysisStage: rec.AnalysisStage,
			Error:         rec.Error,
			FailedStage:   rec.FailedStage,
		})
	}
}

func writeReadError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RECORDING_NOT_FOUND", "Recording not found", nil)
	case errors.Is(err, store.ErrStoreUnavailable):
		response.Unavailable(w, "STORE_UNAVAILABLE", "The document store is not available", unavailableRetry)
	default:
		slog.Error("reading recording failed", "recording_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
