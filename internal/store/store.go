package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStoreUnavailable  = errors.New("document store unavailable")
)

// RecordStore is the document store interface for recordings. Every backend
// applies updates conditionally on the persisted status, so a status can
// only move forward.
type RecordStore interface {
	Ping(ctx context.Context) error

	// CreateRecording inserts rec if no document with its ID exists.
	// Returns ErrDuplicateKey otherwise.
	CreateRecording(ctx context.Context, rec *models.Recording) error
	GetRecording(ctx context.Context, id string) (*models.Recording, error)
	// ApplyUpdate merges u into the stored document. Returns ErrNotFound for
	// an unknown id and ErrInvalidTransition when the persisted status does
	// not allow u.Status.
	ApplyUpdate(ctx context.Context, id string, u models.Update) error

	Close(ctx context.Context) error
}

// isDomainError reports whether err is an expected outcome rather than a
// sign of a broken connection.
func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrInvalidTransition)
}
