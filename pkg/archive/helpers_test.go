package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/illmade-knight/go-livestatus/pkg/archive"
	"github.com/illmade-knight/go-livestatus/pkg/types"
)

// mockBatchWriter records every batch it receives.
type mockBatchWriter struct {
	mu      sync.Mutex
	batches [][]*types.Observation
	err     error
	closed  bool
}

func (m *mockBatchWriter) WriteBatch(_ context.Context, batch []*types.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]*types.Observation(nil), batch...))
	return m.err
}

func (m *mockBatchWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockBatchWriter) Batches() [][]*types.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*types.Observation(nil), m.batches...)
}

func (m *mockBatchWriter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockObjectWriter writes to an in-memory buffer.
type mockObjectWriter struct {
	buf    bytes.Buffer
	closed bool
	fail   bool
}

func (m *mockObjectWriter) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	if m.fail {
		return 0, errors.New("bucket unavailable")
	}
	return m.buf.Write(p)
}

func (m *mockObjectWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}

type mockObject struct {
	writer *mockObjectWriter
}

func (m *mockObject) NewWriter(context.Context) io.WriteCloser {
	return m.writer
}

// mockObjectStore keeps every created object by name.
type mockObjectStore struct {
	mu      sync.Mutex
	fail    bool
	buckets map[string]struct{}
	objects map[string]*mockObjectWriter
}

func newMockObjectStore(fail bool) *mockObjectStore {
	return &mockObjectStore{fail: fail, buckets: map[string]struct{}{}, objects: map[string]*mockObjectWriter{}}
}

func (m *mockObjectStore) Bucket(name string) archive.Bucket {
	m.mu.Lock()
	m.buckets[name] = struct{}{}
	m.mu.Unlock()
	return m
}

func (m *mockObjectStore) Object(name string) archive.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &mockObjectWriter{fail: m.fail}
	m.objects[name] = w
	return &mockObject{writer: w}
}

func (m *mockObjectStore) Objects() map[string]*mockObjectWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*mockObjectWriter, len(m.objects))
	for k, v := range m.objects {
		out[k] = v
	}
	return out
}
