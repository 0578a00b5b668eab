package model

import "strings"

// MultiValueSeparator joins the values of a multi-valued field in the
// persisted display cell.
const MultiValueSeparator = ", "

// StoredFile describes an attachment after it was written to blob storage.
type StoredFile struct {
	ID           string `json:"id"`
	MimeType     string `json:"mimeType"`
	Filename     string `json:"filename"`
	Location     string `json:"location"`
	ViewURL      string `json:"viewUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Size         int64  `json:"size"`
	// Pages is set for PDF attachments whose page tree could be read.
	Pages int `json:"pages,omitempty"`
}

// DisplayURL is the link persisted in the row: the thumbnail when one exists.
func (f StoredFile) DisplayURL() string {
	if f.ThumbnailURL != "" {
		return f.ThumbnailURL
	}
	return f.ViewURL
}

// Value is one rendered value of a cell. Text is what gets persisted, Raw is
// what the form posted. File is set for attachments that were stored.
type Value struct {
	Text string
	Raw  string
	File *StoredFile
}

// Cell holds every value a submission supplied for one column.
type Cell struct {
	Column Column
	Values []Value
}

// Display joins the cell values into the single persisted string.
func (c Cell) Display() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = v.Text
	}
	return strings.Join(parts, MultiValueSeparator)
}

// Row is a built row: one cell per schema column, in column order.
type Row struct {
	Cells []Cell
}

// Display returns the persisted cell strings in column order.
func (r Row) Display() []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Display()
	}
	return out
}
