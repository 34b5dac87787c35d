package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Loader extracts the plain text of a document at a filesystem path.
type Loader interface {
	Load(ctx context.Context, path string) (string, error)
}

type pdfLoader struct{}

// NewPDFLoader returns the production PDF text extractor.
func NewPDFLoader() Loader {
	return pdfLoader{}
}

func (pdfLoader) Load(_ context.Context, path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrUnreadableDocument, path, err)
	}
	defer file.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract text from %s: %w", ErrUnreadableDocument, path, err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("%w: read text from %s: %w", ErrUnreadableDocument, path, err)
	}

	return normalizePlainText(buf.String()), nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
