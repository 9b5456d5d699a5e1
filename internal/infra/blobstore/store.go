// Package blobstore keeps proof uploads on the local filesystem.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lynks-network/lynks/internal/domain"
)

// Store implements domain.BlobStore.
// Each proof gets its own uuid-named blob under <dir>/blobs, with its
// SHA-256 alongside so a corrupted file is detected on read.
type Store struct {
	dir      string
	maxBytes int64
}

var _ domain.BlobStore = (*Store)(nil)

// New creates a Store rooted at dir. maxBytes <= 0 disables the size check.
func New(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

// Init ensures the directory structure exists.
func (s *Store) Init() error {
	d := filepath.Join(s.dir, "blobs")
	if err := os.MkdirAll(d, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", d, err)
	}
	return nil
}

// BlobPath returns the filesystem path for ref.
func (s *Store) BlobPath(ref string) string {
	return filepath.Join(s.dir, "blobs", ref)
}

func (s *Store) digestPath(ref string) string {
	return s.BlobPath(ref) + ".sha256"
}

// validRef rejects anything that is not a store-issued reference, which
// also keeps callers from escaping the blob directory.
func validRef(ref string) error {
	if _, err := uuid.Parse(ref); err != nil || strings.ContainsAny(ref, `/\.`) {
		return fmt.Errorf("invalid proof reference %q: %w", ref, domain.ErrNotFound)
	}
	return nil
}

// Put stores data and returns its reference. The blob is written to a
// temp file and renamed so readers never see a partial upload.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.ErrProofMissing
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%d bytes: %w", len(data), domain.ErrProofTooLarge)
	}
	if err := s.Init(); err != nil {
		return "", err
	}

	ref := uuid.NewString()
	tmp, err := os.CreateTemp(filepath.Join(s.dir, "blobs"), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.WriteFile(s.digestPath(ref), []byte(computeSHA256(data)), 0o644); err != nil {
		return "", fmt.Errorf("write digest: %w", err)
	}
	if err := os.Rename(tmpName, s.BlobPath(ref)); err != nil {
		_ = os.Remove(s.digestPath(ref))
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return ref, nil
}

// Open returns a reader over the blob after checking its digest.
func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.BlobPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("proof %s: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if want, err := os.ReadFile(s.digestPath(ref)); err == nil {
		if got := computeSHA256(data); got != strings.TrimSpace(string(want)) {
			return nil, fmt.Errorf("proof %s: digest mismatch", ref)
		}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat reports whether ref holds a blob without reading it.
func (s *Store) Stat(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validRef(ref); err != nil {
		return err
	}
	if _, err := os.Stat(s.BlobPath(ref)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("proof %s: %w", ref, domain.ErrNotFound)
		}
		return fmt.Errorf("stat blob: %w", err)
	}
	return nil
}

// Delete removes the blob. A blob that is already gone counts as deleted.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validRef(ref); err != nil {
		// Nothing this store issued can live under an invalid ref.
		return nil
	}
	if err := os.Remove(s.BlobPath(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := os.Remove(s.digestPath(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete digest: %w", err)
	}
	return nil
}

func computeSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
