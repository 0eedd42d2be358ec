// Package local stores receipt files on the local disk, one directory per
// participant.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"event-bot/internal/apperr"
)

type Store struct {
	dir      string
	maxBytes int64
}

func New(dir string, maxBytes int64) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("receipts dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create receipts dir: %w", err)
	}
	return &Store{dir: filepath.Clean(dir), maxBytes: maxBytes}, nil
}

func (s *Store) Name() string { return "local" }

// Save writes r under <participant>/<uuid><ext>. The original file name
// only contributes its extension.
func (s *Store) Save(ctx context.Context, participantID int64, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	ref := strconv.FormatInt(participantID, 10) + "/" + uuid.NewString() + ext
	path := filepath.Join(s.dir, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", apperr.Storage("save receipt", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", apperr.Storage("save receipt", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", apperr.Storage("save receipt", err)
	}
	if n > s.maxBytes {
		_ = os.Remove(path)
		return "", apperr.New(apperr.CodeValidation, "receipt file is too large", nil)
	}
	return ref, nil
}

// path maps ref onto the store directory, refusing refs that escape it.
func (s *Store) path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", apperr.New(apperr.CodeValidation, "bad receipt reference", nil)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *Store) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, apperr.New(apperr.CodeNotFound, "receipt not found", err)
	}
	if err != nil {
		return nil, apperr.Storage("open receipt", err)
	}
	return f, nil
}

// Delete removes the file behind ref. A missing file is not an error.
func (s *Store) Delete(_ context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Storage("delete receipt", err)
	}
	return nil
}
