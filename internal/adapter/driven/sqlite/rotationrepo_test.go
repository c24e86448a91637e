package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

func makeEdge(retired, replacement string, at time.Time) model.RotationEdge {
	return model.RotationEdge{
		RetiredID:        retired,
		RetiredKeyHash:   "hash-" + retired,
		RetiredKeyPrefix: "pre-" + retired,
		ReplacementID:    replacement,
		Owner:            "alice",
		Label:            "billing",
		Reason:           "scheduled",
		At:               at,
	}
}

func TestRotationRepo_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRotationRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, makeEdge("a", "b", testTime)))
	require.NoError(t, repo.Record(ctx, makeEdge("b", "c", testTime.Add(time.Hour))))

	edges, err := repo.List(ctx, model.RotationFilter{})
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "c", edges[0].ReplacementID, "newest first")
	assert.Equal(t, "b", edges[1].ReplacementID)
	assert.Equal(t, "scheduled", edges[1].Reason)
	assert.Equal(t, "hash-a", edges[1].RetiredKeyHash)
	assert.True(t, testTime.Equal(edges[1].At))
}

func TestRotationRepo_ListFiltered(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRotationRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, makeEdge("a", "b", testTime)))
	require.NoError(t, repo.Record(ctx, makeEdge("b", "c", testTime.Add(time.Hour))))

	byReplacement, err := repo.List(ctx, model.RotationFilter{ReplacementID: "b"})
	require.NoError(t, err)
	require.Len(t, byReplacement, 1)
	assert.Equal(t, "a", byReplacement[0].RetiredID)

	byRetired, err := repo.List(ctx, model.RotationFilter{RetiredID: "b"})
	require.NoError(t, err)
	require.Len(t, byRetired, 1)
	assert.Equal(t, "c", byRetired[0].ReplacementID)
}

func TestRotationRepo_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRotationRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, makeEdge("a", "b", testTime)))

	_, err := db.Writer.ExecContext(ctx, `UPDATE rotations SET reason = 'tampered'`)
	assert.Error(t, err, "rotations must reject updates")

	_, err = db.Writer.ExecContext(ctx, `DELETE FROM rotations`)
	assert.Error(t, err, "rotations must reject deletes")
}
