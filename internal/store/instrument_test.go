package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ostiary.org/internal/store"
	"ostiary.org/internal/store/mem"
)

func TestInstrumentedObservesOps(t *testing.T) {
	ops := map[string]int{}
	s := store.Instrumented(mem.New(), func(op string, seconds float64) {
		require.GreaterOrEqual(t, seconds, 0.0)
		ops[op]++
	})

	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "acct", nil))
	require.NoError(t, s.PutObject(ctx, "acct", "usr", []byte("{}"), nil))

	_, err := s.GetObject(ctx, "acct", "usr")
	require.NoError(t, err)

	// Failed calls are observed too.
	_, err = s.GetObject(ctx, "acct", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Equal(t, 1, ops["ensure_container"])
	require.Equal(t, 1, ops["put_object"])
	require.Equal(t, 2, ops["get_object"])
}

func TestInstrumentedNilObserver(t *testing.T) {
	backend := mem.New()
	require.Same(t, backend, store.Instrumented(backend, nil))
}
