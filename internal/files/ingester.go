// Package files turns inline encoded attachments into stored blobs with view
// and thumbnail links.
package files

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/FormSink/internal/model"
	pdfutil "github.com/dharsanguruparan/FormSink/internal/pdf"
	"github.com/dharsanguruparan/FormSink/internal/signing"
)

// BlobStore writes attachment bytes and hands out links to them.
type BlobStore interface {
	// Store writes data under key and returns its permanent public view
	// link, or "" when the store has none.
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// URL returns a short-lived direct link to key.
	URL(ctx context.Context, key string) (string, error)
}

// Status says what became of an attachment.
type Status int

const (
	// StatusEmpty means the form posted no file.
	StatusEmpty Status = iota
	// StatusStored means the file was written to blob storage.
	StatusStored
	// StatusFailed means the payload could not be decoded or stored. The
	// cell degrades to empty and the row is still written.
	StatusFailed
)

// Attachment is the result of ingesting one file value.
type Attachment struct {
	Status Status
	File   model.StoredFile
	Err    error
}

// Target says which table and form an attachment belongs to.
type Target struct {
	Table  string
	Domain string
	FormID string
}

// Linker builds service links for stored objects.
type Linker interface {
	ViewURL(key string) string
	ThumbnailURL(key string) string
}

// SignedLinker issues signed links to the service's file routes. A zero TTL
// issues links that never expire, which is what rows need since they are
// kept indefinitely.
type SignedLinker struct {
	BaseURL string
	Signer  *signing.Signer
	TTL     time.Duration
	Now     func() time.Time
}

// ViewURL returns BaseURL/files/view?key=..&signature=..
func (l *SignedLinker) ViewURL(key string) string {
	return l.link("/files/view", key)
}

// ThumbnailURL returns BaseURL/files/thumbnail?key=..&signature=..
func (l *SignedLinker) ThumbnailURL(key string) string {
	return l.link("/files/thumbnail", key)
}

func (l *SignedLinker) link(route, key string) string {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return l.BaseURL + route + "?" + l.Signer.Query(key, now(), l.TTL).Encode()
}

// Ingester decodes, stores and classifies attachments.
type Ingester struct {
	blobs  BlobStore
	links  Linker
	logger *zap.Logger
	now    func() time.Time
}

// NewIngester constructs an Ingester. With a nil linker the store's own view
// link doubles as the thumbnail link for previewable types, and a store
// without public links falls back to its short-lived direct link.
func NewIngester(blobs BlobStore, links Linker, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{blobs: blobs, links: links, logger: logger.Named("files"), now: time.Now}
}

// Ingest stores one encoded file value. It never returns an error: failures
// are logged and reported through Attachment.Status.
func (i *Ingester) Ingest(ctx context.Context, target Target, encoded string) Attachment {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" || encoded == NoFile {
		return Attachment{Status: StatusEmpty}
	}
	file, err := i.store(ctx, target, encoded)
	if err != nil {
		i.logger.Warn("attachment dropped",
			zap.String("table", target.Table),
			zap.Error(err))
		return Attachment{Status: StatusFailed, Err: err}
	}
	return Attachment{Status: StatusStored, File: file}
}

func (i *Ingester) store(ctx context.Context, target Target, encoded string) (model.StoredFile, error) {
	payload, err := Decode(encoded)
	if err != nil {
		return model.StoredFile{}, err
	}
	if payload.Filename == "" {
		payload.Filename = i.now().UTC().Format("20060102-150405")
	}
	id := uuid.NewString()
	key := ObjectKey(target, id, payload.Filename)
	viewURL, err := i.blobs.Store(ctx, key, payload.Data, payload.MimeType)
	if err != nil {
		return model.StoredFile{}, fmt.Errorf("store %s: %w", payload.Filename, err)
	}
	if viewURL == "" {
		if i.links != nil {
			viewURL = i.links.ViewURL(key)
		} else if viewURL, err = i.blobs.URL(ctx, key); err != nil {
			return model.StoredFile{}, fmt.Errorf("link %s: %w", payload.Filename, err)
		} else {
			i.logger.Warn("no public link for stored file, view link will expire", zap.String("key", key))
		}
	}
	file := model.StoredFile{
		ID:       id,
		MimeType: payload.MimeType,
		Filename: payload.Filename,
		Location: key,
		ViewURL:  viewURL,
		Size:     int64(len(payload.Data)),
	}
	if Thumbnailable(payload.MimeType) {
		file.ThumbnailURL = viewURL
		if i.links != nil {
			file.ThumbnailURL = i.links.ThumbnailURL(key)
		}
	}
	if payload.MimeType == "application/pdf" {
		if pages, err := pdfutil.PageCount(payload.Data); err == nil {
			file.Pages = pages
		} else {
			i.logger.Debug("pdf page count", zap.String("key", key), zap.Error(err))
		}
	}
	return file, nil
}

// ObjectKey namespaces an object by table collection, domain and form.
func ObjectKey(target Target, id, filename string) string {
	return strings.Join([]string{
		Collection(target.Table),
		pathSegment(target.Domain),
		pathSegment(target.FormID),
		id + "-" + url.PathEscape(filename),
	}, "/")
}

// Collection maps a table name onto a path-safe object prefix.
func Collection(table string) string {
	return pathSegment(strings.ReplaceAll(table, "#", "-"))
}

func pathSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}
