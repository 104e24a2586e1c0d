package fsstore_test

import (
	"context"
	"testing"

	"github.com/starlingdb/starling/adapter/fsstore"
	"github.com/starlingdb/starling/internal/document"
	"github.com/starlingdb/starling/internal/hlc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, cleanup, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	defer cleanup()

	stamp := hlc.Encode(100, 0, [2]byte{1, 2})
	doc, err := document.MakeResource("id1", document.Record{"a": float64(1)}, stamp)
	require.NoError(t, err)

	require.NoError(t, a.Put(ctx, "id1", doc))

	got, ok, err := a.Get(ctx, "id1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.Data, got.Data)
	assert.Equal(t, doc.Latest, got.Latest)
}

func TestGetMissingIsNotFoundNotError(t *testing.T) {
	ctx := context.Background()
	a, cleanup, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	defer cleanup()

	_, ok, err := a.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	a, cleanup, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	defer cleanup()

	doc, err := document.MakeResource("id1", document.Record{}, hlc.Encode(100, 0, [2]byte{}))
	require.NoError(t, err)
	require.NoError(t, a.Put(ctx, "id1", doc))

	existed, err := a.Delete(ctx, "id1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = a.Delete(ctx, "id1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestEntriesRangesOverEveryStoredDocument(t *testing.T) {
	ctx := context.Background()
	a, cleanup, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	defer cleanup()

	for _, id := range []string{"a/b", "plain", "with spaces"} {
		doc, err := document.MakeResource(id, document.Record{}, hlc.Encode(100, 0, [2]byte{}))
		require.NoError(t, err)
		require.NoError(t, a.Put(ctx, id, doc))
	}

	entries, err := a.Entries(ctx)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for id, doc := range entries {
		seen[id] = true
		assert.Equal(t, id, doc.ID)
	}
	assert.Len(t, seen, 3)
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	a, cleanup, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	defer cleanup()

	doc, err := document.MakeResource("id1", document.Record{}, hlc.Encode(100, 0, [2]byte{}))
	require.NoError(t, err)
	require.NoError(t, a.Put(ctx, "id1", doc))

	require.NoError(t, a.Clear(ctx))

	_, ok, err := a.Get(ctx, "id1")
	require.NoError(t, err)
	assert.False(t, ok)
}
