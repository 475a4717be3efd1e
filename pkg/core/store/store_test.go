package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRunRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepo()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, &RunRecord{ID: "r1", Company: "repsol", FieldID: "019_maturities", Payload: json.RawMessage(`{"a":1}`), CreatedAt: base}))
	require.NoError(t, repo.Save(ctx, &RunRecord{ID: "r2", Company: "repsol", FieldID: "019_maturities", Payload: json.RawMessage(`{"a":2}`), CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, repo.Save(ctx, &RunRecord{ID: "r3", Company: "dia", FieldID: "019_maturities"}))

	latest, err := repo.Latest(ctx, "repsol", "019_maturities")
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.ID)
	assert.JSONEq(t, `{"a":2}`, string(latest.Payload))

	_, err = repo.Latest(ctx, "acciona", "019_maturities")
	assert.ErrorIs(t, err, ErrRunNotFound)

	runs, err := repo.List(ctx, "repsol", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)

	runs, err = repo.List(ctx, "dia", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].CreatedAt.IsZero())
}

func TestRunRepoWithoutPool(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo()
	if GetPool() != nil {
		t.Skip("a pool is configured")
	}
	assert.ErrorIs(t, repo.Save(ctx, &RunRecord{ID: "x"}), ErrNotInitialized)
	_, err := repo.Latest(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = repo.List(ctx, "a", 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, repo.EnsureSchema(ctx), ErrNotInitialized)
}
