package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal single-font PDF with one page per content stream and a valid xref table.
func buildPDF(pages ...string) []byte {
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, content := range pages {
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			5+2*i))
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func textStream(s string) string {
	return fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", s)
}

func TestPDF_Extract(t *testing.T) {
	p := NewPDF(0)

	text, err := p.Extract(context.Background(), bytes.NewReader(buildPDF(textStream("Hello docsearch"))))

	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
	assert.Equal(t, strings.TrimSpace(text), text)
}

func TestPDF_Extract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "empty input", input: nil, wantErr: ErrUnreadable},
		{name: "not a pdf", input: []byte("plain text pretending to be a pdf"), wantErr: ErrUnreadable},
		{name: "no pages", input: buildPDF(), wantErr: ErrNoPages},
		{name: "blank page", input: buildPDF(""), wantErr: ErrNoText},
	}

	p := NewPDF(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := p.Extract(context.Background(), bytes.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, text)
		})
	}
}

func TestPDF_Extract_TooLarge(t *testing.T) {
	p := NewPDF(16)

	_, err := p.Extract(context.Background(), bytes.NewReader(buildPDF(textStream("x"))))

	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestPDF_Extract_NilReader(t *testing.T) {
	_, err := NewPDF(0).Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnreadable)
}
