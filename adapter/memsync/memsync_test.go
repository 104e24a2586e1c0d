package memsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/starlingdb/starling/adapter/memsync"
	"github.com/starlingdb/starling/internal/document"
	"github.com/starlingdb/starling/internal/hlc"
	"github.com/starlingdb/starling/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDeliversToOtherSide(t *testing.T) {
	link := memsync.NewLink(0, time.Millisecond)
	defer link.Close()

	a, b := link.A(), link.B()

	doc, err := document.MakeResource("id1", document.Record{"x": float64(1)}, hlc.Encode(100, 0, [2]byte{}))
	require.NoError(t, err)
	snap := store.Snapshot{Docs: []*document.Document{doc}, Eventstamp: doc.Latest}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, a.Push(ctx, snap))

	got, err := b.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, got.Docs, 1)
	assert.Equal(t, "id1", got.Docs[0].ID)
}

func TestFullDropRateNeverDelivers(t *testing.T) {
	link := memsync.NewLink(1, time.Millisecond)
	defer link.Close()

	a, b := link.A(), link.B()

	snap := store.Snapshot{Eventstamp: hlc.MinEventstamp}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := a.Push(ctx, snap)
	assert.ErrorIs(t, err, memsync.ErrDropped)

	_, err = b.Pull(ctx)
	assert.Error(t, err)
}

func TestPullTimesOutWithNothingQueued(t *testing.T) {
	link := memsync.NewLink(0, time.Millisecond)
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := link.A().Pull(ctx)
	assert.Error(t, err)
}
