package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

func makeEntry(id string, subject *string, event model.EventType, outcome model.Outcome, at time.Time) model.AuditEntry {
	return model.AuditEntry{
		ID:        id,
		SubjectID: subject,
		EventType: event,
		Source:    "127.0.0.1; test",
		RequestID: "req-" + id,
		Endpoint:  "validate",
		Outcome:   outcome,
		Detail:    "detail " + id,
		At:        at,
	}
}

func TestAuditRepo_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	subject := "cred-1"
	require.NoError(t, repo.Append(ctx, makeEntry("e1", &subject, model.EventCreated, model.OutcomeSuccess, testTime)))
	require.NoError(t, repo.Append(ctx, makeEntry("e2", nil, model.EventValidated, model.OutcomeFailure, testTime.Add(time.Second))))

	entries, err := repo.List(ctx, model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "e2", entries[0].ID, "newest first")
	assert.Nil(t, entries[0].SubjectID)
	assert.Equal(t, model.OutcomeFailure, entries[0].Outcome)

	require.NotNil(t, entries[1].SubjectID)
	assert.Equal(t, "cred-1", *entries[1].SubjectID)
	assert.Equal(t, model.EventCreated, entries[1].EventType)
	assert.Equal(t, "req-e1", entries[1].RequestID)
	assert.True(t, testTime.Equal(entries[1].At))
}

func TestAuditRepo_ListFiltered(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	a, b := "cred-a", "cred-b"
	require.NoError(t, repo.Append(ctx, makeEntry("e1", &a, model.EventCreated, model.OutcomeSuccess, testTime)))
	require.NoError(t, repo.Append(ctx, makeEntry("e2", &a, model.EventValidated, model.OutcomeSuccess, testTime.Add(time.Second))))
	require.NoError(t, repo.Append(ctx, makeEntry("e3", &b, model.EventValidated, model.OutcomeFailure, testTime.Add(2*time.Second))))

	tests := []struct {
		name    string
		filter  model.AuditFilter
		wantIDs []string
	}{
		{name: "by subject", filter: model.AuditFilter{SubjectID: "cred-a"}, wantIDs: []string{"e2", "e1"}},
		{name: "by event", filter: model.AuditFilter{EventType: model.EventValidated}, wantIDs: []string{"e3", "e2"}},
		{name: "by outcome", filter: model.AuditFilter{Outcome: model.OutcomeFailure}, wantIDs: []string{"e3"}},
		{name: "limit", filter: model.AuditFilter{Limit: 1}, wantIDs: []string{"e3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestAuditRepo_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, makeEntry("e1", nil, model.EventRejected, model.OutcomeFailure, testTime)))

	_, err := db.Writer.ExecContext(ctx, `UPDATE audit_entries SET detail = 'tampered'`)
	assert.Error(t, err)

	_, err = db.Writer.ExecContext(ctx, `DELETE FROM audit_entries`)
	assert.Error(t, err)
}
