package store_test

import (
	"testing"
	"time"

	"github.com/starlingdb/starling/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isAdult(_ string, rec store.Record) bool {
	age, ok := rec["age"].(float64)
	return ok && age >= 18
}

func resultIDs(results []store.QueryResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestQueryInitialResultsReflectCurrentState(t *testing.T) {
	s := newStore(t)
	_, err := s.Add("kid", store.Record{"age": float64(10)})
	require.NoError(t, err)
	_, err = s.Add("adult", store.Record{"age": float64(30)})
	require.NoError(t, err)

	q, err := s.Query(store.QuerySpec{Name: "adults", Predicate: isAdult})
	require.NoError(t, err)

	results, _ := q.Results()
	assert.Contains(t, resultIDs(results), "adult")
	assert.NotContains(t, resultIDs(results), "kid")
}

func TestQueryReactsToAdd(t *testing.T) {
	s := newStore(t)
	q, err := s.Query(store.QuerySpec{Predicate: isAdult})
	require.NoError(t, err)

	results, changed := q.Results()
	assert.Empty(t, results)

	_, err = s.Add("adult", store.Record{"age": float64(40)})
	require.NoError(t, err)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("query did not observe the add within the timeout")
	}

	results, _ = q.Results()
	assert.Contains(t, resultIDs(results), "adult")
}

func TestQueryReactsToTombstone(t *testing.T) {
	s := newStore(t)
	_, err := s.Add("adult", store.Record{"age": float64(40)})
	require.NoError(t, err)

	q, err := s.Query(store.QuerySpec{Predicate: isAdult})
	require.NoError(t, err)

	results, changed := q.Results()
	assert.Contains(t, resultIDs(results), "adult")

	require.NoError(t, s.Remove("adult"))

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("query did not observe the tombstone within the timeout")
	}

	results, _ = q.Results()
	assert.NotContains(t, resultIDs(results), "adult")
}

func TestQueryDropsEntryWhenUpdateNoLongerMatches(t *testing.T) {
	s := newStore(t)
	_, err := s.Add("grownUp", store.Record{"age": float64(20)})
	require.NoError(t, err)

	q, err := s.Query(store.QuerySpec{Predicate: isAdult})
	require.NoError(t, err)

	require.NoError(t, s.Update("grownUp", store.Record{"age": float64(5)}))

	results, _ := q.Results()
	assert.NotContains(t, resultIDs(results), "grownUp")
}

func TestQueryPredicatePanicIsTreatedAsNoMatch(t *testing.T) {
	s := newStore(t)
	q, err := s.Query(store.QuerySpec{Predicate: func(string, store.Record) bool {
		panic("bad predicate")
	}})
	require.NoError(t, err)

	_, err = s.Add("id1", store.Record{})
	require.NoError(t, err)

	results, _ := q.Results()
	assert.Empty(t, results)
}

func TestQuerySelectPanicIsTreatedAsNoMatch(t *testing.T) {
	s := newStore(t)
	q, err := s.Query(store.QuerySpec{
		Predicate: func(string, store.Record) bool { return true },
		Select: func(store.Record) any {
			panic("bad select")
		},
	})
	require.NoError(t, err)

	_, err = s.Add("id1", store.Record{})
	require.NoError(t, err)

	results, _ := q.Results()
	assert.Empty(t, results)
}

func TestQueryDisposeStopsUpdates(t *testing.T) {
	s := newStore(t)
	q, err := s.Query(store.QuerySpec{Predicate: isAdult})
	require.NoError(t, err)
	q.Dispose()

	_, err = s.Add("adult", store.Record{"age": float64(40)})
	require.NoError(t, err)

	results, _ := q.Results()
	assert.Empty(t, results)
}

func TestQuerySelectProjectsValues(t *testing.T) {
	s := newStore(t)
	_, err := s.Add("alice", store.Record{"age": float64(30), "name": "Alice"})
	require.NoError(t, err)
	_, err = s.Add("kid", store.Record{"age": float64(5), "name": "Kid"})
	require.NoError(t, err)

	q, err := s.Query(store.QuerySpec{
		Predicate: isAdult,
		Select: func(rec store.Record) any {
			return rec["name"]
		},
	})
	require.NoError(t, err)

	results, _ := q.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].ID)
	assert.Equal(t, "Alice", results[0].Value)
}

func TestQueryOrderSortsResults(t *testing.T) {
	s := newStore(t)
	_, err := s.Add("bob", store.Record{"age": float64(40)})
	require.NoError(t, err)
	_, err = s.Add("alice", store.Record{"age": float64(20)})
	require.NoError(t, err)
	_, err = s.Add("carol", store.Record{"age": float64(30)})
	require.NoError(t, err)

	q, err := s.Query(store.QuerySpec{
		Predicate: isAdult,
		Select: func(rec store.Record) any {
			return rec["age"].(float64)
		},
		Order: func(a, b any) int {
			switch {
			case a.(float64) < b.(float64):
				return -1
			case a.(float64) > b.(float64):
				return 1
			default:
				return 0
			}
		},
	})
	require.NoError(t, err)

	results, _ := q.Results()
	require.Len(t, results, 3)
	assert.Equal(t, []string{"alice", "carol", "bob"}, resultIDs(results))
}
