package receipts

import (
	"context"
	"io"
)

// Store keeps payment receipt files uploaded during registration and hands
// back an opaque reference that is saved on the registration.
type Store interface {
	Name() string

	// Save copies r into the store. Files over the size limit fail with a
	// VALIDATION_FAILURE and nothing is kept.
	Save(ctx context.Context, participantID int64, filename string, r io.Reader) (ref string, err error)

	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete drops a file that no registration will reference, such as the
	// receipt of an abandoned form.
	Delete(ctx context.Context, ref string) error
}
