package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBlobStore implements BlobStore on the local filesystem. Each
// classification backup lives at <base>/<userID>/<emailID>/classification.json.
type FileBlobStore struct {
	base string
}

const blobFileName = "classification.json"

// NewFileBlobStore creates the base directory if needed and returns a
// filesystem-backed blob store rooted there.
func NewFileBlobStore(base string) (*FileBlobStore, error) {
	if base == "" {
		return nil, fmt.Errorf("blob store base directory is required")
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &FileBlobStore{base: base}, nil
}

// PutClassification writes one classification backup document. The write
// goes through a temp file and rename so readers never see a partial blob.
func (b *FileBlobStore) PutClassification(ctx context.Context, userID, emailID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := b.dirFor(userID, emailID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating blob directory for email %s: %w", emailID, err)
	}

	tmp, err := os.CreateTemp(dir, blobFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating blob temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing blob for email %s: %w", emailID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing blob temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, blobFileName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming blob for email %s: %w", emailID, err)
	}
	return nil
}

// GetClassification reads one classification backup document, or
// ErrNotFound when none has been written.
func (b *FileBlobStore) GetClassification(ctx context.Context, userID, emailID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := b.dirFor(userID, emailID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, blobFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob for email %s: %w", emailID, err)
	}
	return data, nil
}

// dirFor builds the per-email directory, rejecting key segments that
// would escape the base directory.
func (b *FileBlobStore) dirFor(userID, emailID string) (string, error) {
	for _, seg := range []string{userID, emailID} {
		if seg == "" || seg == "." || seg == ".." ||
			strings.ContainsAny(seg, `/\`) {
			return "", fmt.Errorf("invalid blob key segment %q", seg)
		}
	}
	return filepath.Join(b.base, userID, emailID), nil
}
