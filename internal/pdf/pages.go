// Package pdfutil inspects PDF attachments using ledongthuc/pdf.
package pdfutil

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// PageCount returns the number of pages in the PDF held by data.
func PageCount(data []byte) (n int, err error) {
	// The reader panics on some truncated xref tables.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	return doc.NumPage(), nil
}
