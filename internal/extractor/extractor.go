// Package extractor turns raw PDF bytes into plain text.
package extractor

import (
	"context"
	"errors"
	"io"
)

var (
	ErrEncrypted  = errors.New("pdf is encrypted and cannot be processed")
	ErrNoPages    = errors.New("pdf has no pages")
	ErrNoText     = errors.New("no text could be extracted from pdf")
	ErrUnreadable = errors.New("pdf could not be read")
)

// Extractor reads a document stream and returns its trimmed text.
// Implementations fail with one of the sentinels above.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}
