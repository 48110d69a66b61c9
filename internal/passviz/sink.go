package passviz

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrSinkUnavailable reports that a finished document could not be
// delivered. It never indicates a pipeline failure.
var ErrSinkUnavailable = errors.New("passviz: sink unavailable")

// Sink accepts the finished document of a collection session. Write is
// called at most once per session.
type Sink interface {
	Write(payload []byte) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(payload []byte) error

func (f SinkFunc) Write(payload []byte) error { return f(payload) }

// WriterSink writes documents to an io.Writer. Concurrent sessions may
// share one WriterSink; their documents are not interleaved.
type WriterSink struct {
	mu      sync.Mutex
	w       io.Writer
	newline bool
}

// NewWriterSink returns a sink writing documents verbatim to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// DebugSink returns a sink writing to stderr, one document per line group.
func DebugSink() *WriterSink {
	return &WriterSink{w: os.Stderr, newline: true}
}

func (s *WriterSink) Write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if s.newline {
		if _, err := io.WriteString(s.w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// FileSink writes the document to Path, replacing the file atomically.
// Paths ending in ".zst" are zstd-compressed.
type FileSink struct {
	Path string
}

func (s FileSink) Write(payload []byte) (err error) {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".passviz-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if strings.HasSuffix(s.Path, ".zst") {
		enc, encErr := zstd.NewWriter(f)
		if encErr != nil {
			return encErr
		}
		if _, err = enc.Write(payload); err != nil {
			_ = enc.Close()
			return err
		}
		if err = enc.Close(); err != nil {
			return err
		}
	} else if _, err = f.Write(payload); err != nil {
		return err
	}

	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(f.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}
