package archive_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/archive"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeObject(t *testing.T, w *mockObjectWriter) []types.Observation {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(w.buf.Bytes()))
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)

	var out []types.Observation
	for _, line := range bytes.Split(bytes.TrimSpace(content), []byte("\n")) {
		var obs types.Observation
		require.NoError(t, json.Unmarshal(line, &obs))
		out = append(out, obs)
	}
	return out
}

func TestNewGCSWriter_Validation(t *testing.T) {
	_, err := archive.NewGCSWriter(nil, archive.GCSConfig{BucketName: "b"}, zerolog.Nop())
	require.Error(t, err)
	_, err = archive.NewGCSWriter(newMockObjectStore(false), archive.GCSConfig{}, zerolog.Nop())
	require.Error(t, err)
}

func TestGCSWriter_GroupsByDay(t *testing.T) {
	// Arrange
	store := newMockObjectStore(false)
	writer, err := archive.NewGCSWriter(store, archive.GCSConfig{BucketName: "archive", ObjectPrefix: "observations"}, zerolog.Nop())
	require.NoError(t, err)

	day1 := time.Date(2025, 6, 13, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 14, 0, 1, 0, 0, time.UTC)
	batch := []*types.Observation{
		{EntityID: 1, Viewers: 3, Available: true, ObservedAt: day1},
		{EntityID: 2, Ended: true, Available: true, ObservedAt: day2},
		{EntityID: 1, Viewers: 4, Available: true, ObservedAt: day1},
		nil,
	}

	// Act
	require.NoError(t, writer.WriteBatch(context.Background(), batch))
	require.NoError(t, writer.Close())

	// Assert
	objects := store.Objects()
	require.Len(t, objects, 2)
	counts := map[string]int{}
	for name, w := range objects {
		assert.True(t, strings.HasSuffix(name, ".jsonl.gz"), name)
		assert.True(t, w.closed)
		switch {
		case strings.HasPrefix(name, "observations/2025/06/13/"):
			obs := decodeObject(t, w)
			counts["13"] = len(obs)
			assert.Equal(t, 3, obs[0].Viewers)
			assert.Equal(t, 4, obs[1].Viewers)
		case strings.HasPrefix(name, "observations/2025/06/14/"):
			counts["14"] = len(decodeObject(t, w))
		default:
			t.Errorf("unexpected object %s", name)
		}
	}
	assert.Equal(t, map[string]int{"13": 2, "14": 1}, counts)
	assert.Contains(t, store.buckets, "archive")
}

func TestGCSWriter_UploadFailure(t *testing.T) {
	writer, err := archive.NewGCSWriter(newMockObjectStore(true), archive.GCSConfig{BucketName: "archive"}, zerolog.Nop())
	require.NoError(t, err)

	err = writer.WriteBatch(context.Background(), []*types.Observation{{EntityID: 1, ObservedAt: time.Now()}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
}

func TestGCSWriter_EmptyBatch(t *testing.T) {
	store := newMockObjectStore(false)
	writer, err := archive.NewGCSWriter(store, archive.GCSConfig{BucketName: "archive"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, writer.WriteBatch(context.Background(), nil))
	assert.Empty(t, store.Objects())
}
