package blobstore

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lynks-network/lynks/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), 16)
	require.NoError(t, s.Init())
	return s
}

func TestPutOpenDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("screenshot"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	rc, err := s.Open(ctx, ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "screenshot", string(data))

	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Open(ctx, ref)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting twice is fine.
	require.NoError(t, s.Delete(ctx, ref))
}

func TestPut_IdenticalContentGetsDistinctRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Put(ctx, []byte("same"))
	require.NoError(t, err)
	b, err := s.Put(ctx, []byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.NoError(t, s.Delete(ctx, a))
	_, err = s.Open(ctx, b)
	require.NoError(t, err)
}

func TestPut_Limits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, nil)
	require.ErrorIs(t, err, domain.ErrProofMissing)

	_, err = s.Put(ctx, make([]byte, 17))
	require.ErrorIs(t, err, domain.ErrProofTooLarge)
}

func TestOpen_RejectsForeignRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, ref := range []string{"../lynks.db", "", domain.ProofCleared} {
		_, err := s.Open(ctx, ref)
		require.ErrorIs(t, err, domain.ErrNotFound, "ref %q", ref)
		require.NoError(t, s.Delete(ctx, ref), "ref %q", ref)
	}
}

func TestOpen_DetectsCorruption(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("original"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.BlobPath(ref), []byte("tampered"), 0o644))

	_, err = s.Open(ctx, ref)
	require.Error(t, err)
	require.Contains(t, err.Error(), "digest mismatch")
}

func TestCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}
