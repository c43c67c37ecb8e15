package db

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/wonderpush/segmenter/internal/types"
)

func newTestStore(t *testing.T) *SegmentStore {
	t.Helper()
	db := openTestDB(t)
	queries, err := LoadQueries(db)
	require.NoError(t, err)
	store, err := NewSegmentStore(queries, hclog.NewNullLogger())
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2020, 3, 15, 12, 0, 0, 0, time.UTC) }
	return store
}

func TestSegmentStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.Create(ctx, "app1", "french users", []byte(`{ ".country" : { "eq" : "FR" } }`))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, `{".country":{"eq":"FR"}}`, string(created.Definition))
	require.NotZero(t, created.Fingerprint)

	got, err := store.Get(ctx, "app1", created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, types.ApplicationID("app1"), got.AppID)
	require.Equal(t, "french users", got.Name)
	require.Equal(t, string(created.Definition), string(got.Definition))
	require.Equal(t, created.Fingerprint, got.Fingerprint)
	require.True(t, created.CreatedAt.Equal(got.CreatedAt), "CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
}

func TestSegmentStore_ScopedToApplication(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.Create(ctx, "app1", "all", []byte(`{}`))
	require.NoError(t, err)

	_, err = store.Get(ctx, "app2", created.ID)
	require.ErrorIs(t, err, types.ErrSegmentNotFound)

	err = store.Delete(ctx, "app2", created.ID)
	require.ErrorIs(t, err, types.ErrSegmentNotFound)

	// The same name is free in another application.
	_, err = store.Create(ctx, "app2", "all", []byte(`{}`))
	require.NoError(t, err)
}

func TestSegmentStore_CreateRejects(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Create(ctx, "app1", "taken", []byte(`{}`))
	require.NoError(t, err)

	tests := []struct {
		name       string
		appID      types.ApplicationID
		segment    string
		definition string
		wantErr    error
	}{
		{"duplicate name", "app1", "taken", `{}`, types.ErrSegmentExists},
		{"empty name", "app1", "", `{}`, types.ErrBadInput},
		{"long name", "app1", string(make([]byte, types.MaxSegmentNameLength+1)), `{}`, types.ErrBadInput},
		{"missing application", "", "x", `{}`, types.ErrBadInput},
		{"invalid JSON", "app1", "x", `{`, types.ErrBadInput},
		{"unknown criterion", "app1", "x", `{"future":{}}`, types.ErrUnknownCriterion},
		{"unknown value", "app1", "x", `{".a":{"gt":{"future":1}}}`, types.ErrUnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, tt.appID, tt.segment, []byte(tt.definition))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSegmentStore_ListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var ids []types.SegmentID
	for _, name := range []string{"a", "b", "c"} {
		seg, err := store.Create(ctx, "app1", name, []byte(`{".n":{"eq":1}}`))
		require.NoError(t, err)
		ids = append(ids, seg.ID)
	}
	_, err := store.Create(ctx, "other", "a", []byte(`{}`))
	require.NoError(t, err)

	list, err := store.List(ctx, "app1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, seg := range list {
		require.Equal(t, ids[i], seg.ID, "UUIDv7 ids list in creation order")
	}

	require.NoError(t, store.Delete(ctx, "app1", ids[1]))
	require.ErrorIs(t, store.Delete(ctx, "app1", ids[1]), types.ErrSegmentNotFound)

	list, err = store.List(ctx, "app1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	empty, err := store.List(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, empty)
}
