package store_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/starlingdb/starling/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginCommitsAllWritesAtomically(t *testing.T) {
	s := newStore(t)

	err := s.Begin(func(tx *store.Tx) error {
		if _, err := tx.Add("id1", store.Record{"a": float64(1)}); err != nil {
			return err
		}
		if _, err := tx.Add("id2", store.Record{"a": float64(2)}); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	_, ok1, err := s.Get("id1")
	require.NoError(t, err)
	_, ok2, err := s.Get("id2")
	require.NoError(t, err)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestBeginErrorLeavesNoTrace(t *testing.T) {
	s := newStore(t)
	sentinel := errors.New("boom")

	err := s.Begin(func(tx *store.Tx) error {
		if _, err := tx.Add("id1", store.Record{"a": float64(1)}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, ok, getErr := s.Get("id1")
	require.NoError(t, getErr)
	assert.False(t, ok, "a transaction that returns an error must leave the store exactly as it was")
}

func TestTxRollbackLeavesNoTrace(t *testing.T) {
	s := newStore(t)

	err := s.Begin(func(tx *store.Tx) error {
		if _, err := tx.Add("id1", store.Record{"a": float64(1)}); err != nil {
			return err
		}
		tx.Rollback()
		return nil
	})
	require.NoError(t, err)

	_, ok, err := s.Get("id1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTxPanicLeavesNoTrace(t *testing.T) {
	s := newStore(t)

	err := s.Begin(func(tx *store.Tx) error {
		if _, err := tx.Add("id1", store.Record{"a": float64(1)}); err != nil {
			return err
		}
		panic("unexpected")
	})
	require.Error(t, err)

	_, ok, getErr := s.Get("id1")
	require.NoError(t, getErr)
	assert.False(t, ok)
}

func TestTxReadYourWrites(t *testing.T) {
	s := newStore(t)
	_, err := s.Add("id1", store.Record{"a": float64(1)})
	require.NoError(t, err)

	err = s.Begin(func(tx *store.Tx) error {
		if err := tx.Update("id1", store.Record{"a": float64(2)}); err != nil {
			return err
		}
		rec, ok, err := tx.Get("id1")
		if err != nil {
			return err
		}
		require.True(t, ok)
		assert.Equal(t, float64(2), rec["a"])
		return nil
	})
	require.NoError(t, err)
}

func TestBeginWithResultReturnsGeneratedID(t *testing.T) {
	s := newStore(t)

	id, err := store.BeginWithResult(s, func(tx *store.Tx) (string, error) {
		return tx.Add("", store.Record{"a": float64(1)})
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, ok, err := s.Get(id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDisposedStoreRejectsBegin(t *testing.T) {
	s := newStore(t)
	s.Dispose()

	err := s.Begin(func(tx *store.Tx) error {
		_, err := tx.Add("id1", store.Record{})
		return err
	})
	assert.ErrorIs(t, err, store.ErrDisposed)
}
