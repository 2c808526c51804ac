package export

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ExtractText pulls the plain text out of an exported PDF on disk. It is used
// to inspect artifacts after the fact without opening a viewer.
func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}
