package manager

import (
	"bytes"
	"io"
	"testing"
)

// memorySink is a bare-bones raft.SnapshotSink backed by an in-memory
// buffer, standing in for the file-backed sink raft.FileSnapshotStore
// hands the FSM in production.
type memorySink struct {
	buf bytes.Buffer
}

func newMemorySink(t *testing.T) *memorySink {
	t.Helper()
	return &memorySink{}
}

func (s *memorySink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memorySink) Close() error                 { return nil }
func (s *memorySink) ID() string                   { return "test-snapshot" }
func (s *memorySink) Cancel() error                 { return nil }

func (s *memorySink) reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(s.buf.Bytes()))
}
