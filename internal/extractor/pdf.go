package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"docsearch/internal/model"
)

// PDF validates documents with pdfcpu and pulls their text layer with ledongthuc/pdf.
// The whole file is buffered, so input is capped at maxBytes.
type PDF struct {
	maxBytes int64
}

// NewPDF returns a PDF extractor. A non-positive maxBytes falls back to model.MaxFileSizeBytes.
func NewPDF(maxBytes int64) *PDF {
	if maxBytes <= 0 {
		maxBytes = model.MaxFileSizeBytes
	}
	// pdfcpu would otherwise create a config directory under the user's home.
	api.DisableConfigDir()
	return &PDF{maxBytes: maxBytes}
}

func (p *PDF) Extract(ctx context.Context, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil reader", ErrUnreadable)
	}
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if int64(len(data)) > p.maxBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrUnreadable, p.maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrUnreadable)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := inspect(data); err != nil {
		return "", err
	}

	text, err := plainText(data)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// inspect rejects encrypted and page-less documents before any text is read.
func inspect(data []byte) error {
	conf := pdfmodel.NewDefaultConfiguration()
	pctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "password") {
			return fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if pctx.Encrypt != nil {
		return ErrEncrypted
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if pctx.PageCount == 0 {
		return ErrNoPages
	}
	return nil
}

// plainText concatenates the text of every page. ledongthuc/pdf panics on some
// malformed content streams, so panics are turned into ErrUnreadable.
func plainText(data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadable, rec)
		}
	}()

	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if rd.NumPage() == 0 {
		return "", ErrNoPages
	}
	tr, err := rd.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(tr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return buf.String(), nil
}
