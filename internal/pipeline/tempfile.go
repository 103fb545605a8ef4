package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ErrAudioTooLarge is returned by NewTempAudio when the stream exceeds maxBytes.
var ErrAudioTooLarge = errors.New("audio exceeds size limit")

// TempAudio is an uploaded audio file spooled to disk for the lifetime of one
// job. The owner must call Release on every path.
type TempAudio struct {
	path string
	size int64
	once sync.Once
}

// NewTempAudio copies at most maxBytes from r into a new file under dir.
// On any error the partial file is removed before returning.
func NewTempAudio(dir string, r io.Reader, maxBytes int64) (*TempAudio, error) {
	f, err := os.CreateTemp(dir, "voicepipe-*.audio")
	if err != nil {
		return nil, fmt.Errorf("creating temp audio: %w", err)
	}
	t := &TempAudio{path: f.Name()}

	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		t.Release()
		return nil, fmt.Errorf("writing temp audio: %w", err)
	case closeErr != nil:
		t.Release()
		return nil, fmt.Errorf("closing temp audio: %w", closeErr)
	case n > maxBytes:
		t.Release()
		return nil, fmt.Errorf("%w: more than %d bytes", ErrAudioTooLarge, maxBytes)
	}
	t.size = n
	return t, nil
}

func (t *TempAudio) Path() string { return t.path }
func (t *TempAudio) Size() int64  { return t.size }

// Bytes reads the whole file.
func (t *TempAudio) Bytes() ([]byte, error) {
	b, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("reading temp audio: %w", err)
	}
	return b, nil
}

// Release removes the file. Only the first call does anything; a removal
// failure is logged and otherwise ignored.
func (t *TempAudio) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove temp audio", "path", t.path, "error", err)
		}
	})
}
