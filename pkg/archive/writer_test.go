package archive_test

import (
	"context"
	"errors"
	"testing"

	"github.com/illmade-knight/go-livestatus/pkg/archive"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiWriter(t *testing.T) {
	ok := &mockBatchWriter{}
	failing := &mockBatchWriter{err: errors.New("table missing")}
	multi := archive.MultiWriter{ok, failing}
	batch := []*types.Observation{{EntityID: 1}}

	err := multi.WriteBatch(context.Background(), batch)

	require.ErrorContains(t, err, "table missing")
	assert.Len(t, ok.Batches(), 1, "a failing writer does not stop the others")
	assert.Len(t, failing.Batches(), 1)

	require.NoError(t, multi.Close())
	assert.True(t, ok.Closed())
	assert.True(t, failing.Closed())
}
