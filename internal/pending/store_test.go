package pending

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "pending.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AddAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, Submission{
		Method:  http.MethodPost,
		URL:     "http://localhost:3000/api/contact",
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(`{"message":"hi"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	subs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	sub := subs[0]
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, http.MethodPost, sub.Method)
	assert.Equal(t, "http://localhost:3000/api/contact", sub.URL)
	assert.Equal(t, "application/json", sub.Headers.Get("Content-Type"))
	assert.Equal(t, []byte(`{"message":"hi"}`), sub.Body)
	assert.Zero(t, sub.Attempts)
	assert.False(t, sub.CreatedAt.IsZero())
}

func TestStore_ListPreservesQueueOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Add(ctx, Submission{Method: http.MethodPost, URL: "http://o/api/x"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	subs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for i, sub := range subs {
		assert.Equal(t, ids[i], sub.ID)
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, Submission{Method: http.MethodPost, URL: "http://o/api/x"})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, id))
	require.NoError(t, s.Remove(ctx, id), "removing an absent id is not an error")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_MarkAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, Submission{Method: http.MethodPost, URL: "http://o/api/x"})
	require.NoError(t, err)

	require.NoError(t, s.MarkAttempt(ctx, id))
	require.NoError(t, s.MarkAttempt(ctx, id))

	subs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 2, subs[0].Attempts)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pending.db")
	ctx := context.Background()

	s1, err := OpenStore(path, nil)
	require.NoError(t, err)

	id, err := s1.Add(ctx, Submission{Method: http.MethodPost, URL: "http://o/api/x", Body: []byte("payload")})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenStore(path, nil)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	subs, err := s2.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, id, subs[0].ID)
	assert.Equal(t, []byte("payload"), subs[0].Body)
}
