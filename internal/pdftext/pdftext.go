// Package pdftext extracts plain text from PDF files.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extract returns the text of every page of the PDF in r, trimmed.
func Extract(r io.ReaderAt, size int64) (text string, err error) {
	// the parser panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ExtractBytes is Extract over an in-memory file.
func ExtractBytes(data []byte) (string, error) {
	return Extract(bytes.NewReader(data), int64(len(data)))
}

// IsPDF reports whether data starts with the PDF signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}
