package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautelab/luxcrawl/internal/storage/memory"
)

func TestPutObject(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	uri, err := store.PutObject(context.Background(), "shop.example/abc.html", "text/html", []byte("<html/>"))
	require.NoError(t, err)
	assert.Equal(t, "memory://shop.example/abc.html", uri)

	got, ok := store.Object("shop.example/abc.html")
	require.True(t, ok)
	assert.Equal(t, "<html/>", string(got))
	assert.Equal(t, 1, store.Len())
}

func TestPutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	body := []byte("original")
	_, err := store.PutObject(context.Background(), "p", "", body)
	require.NoError(t, err)

	body[0] = 'X'
	got, ok := store.Object("p")
	require.True(t, ok)
	assert.Equal(t, "original", string(got))
}

func TestObjectMissing(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	_, ok := store.Object("nope")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}
