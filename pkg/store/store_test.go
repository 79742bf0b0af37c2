package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/qa"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewWithDB(db, "sqlite")
	require.NoError(t, err)
	return store
}

func sampleState() *pipeline.State {
	state := pipeline.NewState("video-1", "https://example.org/v/1", pipeline.ModeStandard,
		pipeline.Features{Citations: true}, "")
	state.Summary = &pipeline.Summary{
		Text:    "A summary of the lecture.",
		Bullets: []string{"one key point"},
	}
	state.Citations = []pipeline.Citation{
		{Timestamp: 42, Display: "00:42", Excerpt: "the raft protocol"},
	}
	return state
}

func TestSaveAndGetResult(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, store.SaveResult(ctx, state))

	loaded, err := store.GetResult(ctx, state.RunID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, state.RunID, loaded.RunID)
	assert.Equal(t, state.ContentID, loaded.ContentID)
	assert.Equal(t, pipeline.ModeStandard, loaded.Mode)
	require.NotNil(t, loaded.Summary)
	assert.Equal(t, state.Summary.Text, loaded.Summary.Text)
	require.Len(t, loaded.Citations, 1)
	assert.Equal(t, "00:42", loaded.Citations[0].Display)
}

func TestSaveResultIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, store.SaveResult(ctx, state))
	require.NoError(t, store.SaveResult(ctx, state), "saving the same run twice is a no-op")

	results, err := store.ListResults(ctx, state.ContentID, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestGetResultMissing(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.GetResult(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestListResultsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleState()
	require.NoError(t, store.SaveResult(ctx, first))
	time.Sleep(10 * time.Millisecond)
	second := sampleState()
	require.NoError(t, store.SaveResult(ctx, second))

	results, err := store.ListResults(ctx, "video-1", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, second.RunID, results[0].RunID)
	assert.Equal(t, first.RunID, results[1].RunID)
}

func TestConversationHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTurn(ctx, "t1", "video-1", "client-1", qa.RoleUser, "what is raft?"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.SaveTurn(ctx, "t2", "video-1", "client-1", qa.RoleAssistant, "a consensus algorithm"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.SaveTurn(ctx, "t3", "video-1", "client-2", qa.RoleUser, "unrelated question"))

	turns, err := store.History(ctx, "video-1", "client-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2, "history is scoped per client")
	assert.Equal(t, qa.RoleUser, turns[0].Role)
	assert.Equal(t, "what is raft?", turns[0].Text)
	assert.Equal(t, qa.RoleAssistant, turns[1].Role)
}

func TestSaveTurnValidation(t *testing.T) {
	store := newTestStore(t)
	err := store.SaveTurn(context.Background(), "", "video-1", "client-1", qa.RoleUser, "text")
	assert.Error(t, err)
}

func TestDeleteExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, store.SaveResult(ctx, state))
	require.NoError(t, store.DeleteExpired(ctx, time.Now().Add(time.Minute)))

	loaded, err := store.GetResult(ctx, state.RunID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
