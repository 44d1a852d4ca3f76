package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "analyses/abc/files/top.gtl", []byte("G04 top*"), ""))
	got, err := s.Get(ctx, "analyses/abc/files/top.gtl")
	require.NoError(t, err)
	assert.Equal(t, []byte("G04 top*"), got)

	require.NoError(t, s.Put(ctx, "analyses/abc/files/top.gtl", []byte("v2"), ""))
	got, err = s.Get(ctx, "analyses/abc/files/top.gtl")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	_, err = s.Get(ctx, "analyses/missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Ping(ctx))
}

func TestLocalStoreKeepsKeysBelowRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocal(root + "/store")
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "../../outside", []byte("x"), ""))
	assert.NoFileExists(t, root+"/outside")
	assert.FileExists(t, root+"/store/outside")
	assert.Error(t, s.Put(context.Background(), "", []byte("x"), ""))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", ContentTypeFor("a/model.json"))
	assert.Equal(t, "application/zip", ContentTypeFor("job.ZIP"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("top.gtl"))
}
