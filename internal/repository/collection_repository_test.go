package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsched/api/internal/model"
)

func TestCollectionRepo_RoundTrip(t *testing.T) {
	conn := openTestDB(t)
	repo := NewSQLCollectionRepo(conn)
	ctx := context.Background()

	c := &model.Collection{
		ID:     "col-1",
		UserID: "alice",
		Name:   "spring drop",
		Items: []model.MediaItem{
			{ID: "m1", Kind: model.MediaKindVideo, URLs: []string{"https://cdn.test/1.mp4"}},
			{ID: "m2", Kind: model.MediaKindSlideshow, URLs: []string{"https://cdn.test/a.jpg", "https://cdn.test/b.jpg"}},
		},
	}
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetForUser(ctx, "col-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "spring drop", got.Name)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "m1", got.Items[0].ID)
	assert.Equal(t, model.MediaKindSlideshow, got.Items[1].Kind)
	assert.Len(t, got.Items[1].URLs, 2)

	_, err = repo.GetForUser(ctx, "col-1", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialRepo_ActiveKey(t *testing.T) {
	repo := NewSQLCredentialRepo(openTestDB(t))
	ctx := context.Background()

	_, err := repo.ActiveKey(ctx, "alice", ProviderPostBridge)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Save(ctx, "alice", ProviderPostBridge, "pb_test_abc123456"))

	key, err := repo.ActiveKey(ctx, "alice", ProviderPostBridge)
	require.NoError(t, err)
	assert.Equal(t, "pb_test_abc123456", key)
}
