package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FormSink/internal/files"
	"github.com/dharsanguruparan/FormSink/internal/model"
	"github.com/dharsanguruparan/FormSink/internal/signing"
	"github.com/dharsanguruparan/FormSink/internal/storage"
	"github.com/dharsanguruparan/FormSink/internal/submission"
)

type recordingPipeline struct {
	got  *model.Submission
	resp submission.Response
}

func (p *recordingPipeline) Handle(_ context.Context, sub *model.Submission) submission.Response {
	p.got = sub
	return p.resp
}

func okPipeline() *recordingPipeline {
	return &recordingPipeline{resp: submission.Response{Status: http.StatusOK, Result: submission.ResultSuccess, Message: "submission received"}}
}

func TestHealth(t *testing.T) {
	srv := New(Options{}, okPipeline(), nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitURLEncodedKeepsOrder(t *testing.T) {
	p := okPipeline()
	srv := New(Options{}, p, nil, nil, nil)
	body := "domain=acme&_id=contact&Zeta=1&Alpha=a+b&Tags=x&Tags=y"
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"success","message":"submission received"}`, rec.Body.String())
	require.NotNil(t, p.got)
	assert.Equal(t, []string{"domain", "_id", "Zeta", "Alpha", "Tags"}, p.got.Fields.Keys())
	assert.Equal(t, "a b", p.got.Fields.First("Alpha"))
	assert.Equal(t, []string{"x", "y"}, p.got.Fields.Values("Tags"))
}

func TestSubmitJSON(t *testing.T) {
	p := okPipeline()
	srv := New(Options{}, p, nil, nil, nil)
	body := `{"domain":"acme","_id":"jobs","Skills":["go","sql"],"Age":42,"Note":null}`
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"domain", "_id", "Skills", "Age", "Note"}, p.got.Fields.Keys())
	assert.Equal(t, []string{"go", "sql"}, p.got.Fields.Values("Skills"))
	assert.Equal(t, "42", p.got.Fields.First("Age"))
	assert.Equal(t, "", p.got.Fields.First("Note"))
}

func TestSubmitJSONRejectsNesting(t *testing.T) {
	srv := New(Options{}, okPipeline(), nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"a":{"b":"c"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp submission.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, submission.ResultError, resp.Result)
}

func TestSubmitMultipartEncodesFiles(t *testing.T) {
	p := okPipeline()
	srv := New(Options{}, p, nil, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("domain", "acme"))
	require.NoError(t, mw.WriteField("_id", "jobs"))
	fw, err := mw.CreateFormFile("CV", "my,cv.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	empty, err := mw.CreateFormFile("Photo", "none.png")
	require.NoError(t, err)
	_, _ = empty.Write(nil)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/submit", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"domain", "_id", "CV", "Photo"}, p.got.Fields.Keys())
	payload, err := files.Decode(p.got.Fields.First("CV"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", payload.MimeType)
	assert.Equal(t, "my_cv.pdf", payload.Filename)
	assert.Equal(t, []byte("%PDF-1.4 fake"), payload.Data)
	assert.Equal(t, files.NoFile, p.got.Fields.First("Photo"))
}

func TestSubmitBodyTooLarge(t *testing.T) {
	srv := New(Options{MaxBodySize: 8}, okPipeline(), nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("domain=acme&_id=contact"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSubmitPassesPipelineStatus(t *testing.T) {
	p := &recordingPipeline{resp: submission.Response{Status: http.StatusBadRequest, Result: submission.ResultError, Message: "missing domain"}}
	srv := New(Options{}, p, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("_id=contact"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"result":"error","message":"missing domain"}`, rec.Body.String())
}

func TestThumbnailRedirect(t *testing.T) {
	blobs := storage.NewMemoryBlobs("https://blobs.test")
	_, err := blobs.Store(context.Background(), "acme-contact/acme/contact/1-a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	signer := signing.NewSigner([]byte("secret"))
	srv := New(Options{}, okPipeline(), signer, blobs, nil)

	now := time.Now()
	q := signer.Query("acme-contact/acme/contact/1-a.png", now, time.Hour)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/thumbnail?"+q.Encode(), nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://blobs.test/acme-contact/acme/contact/1-a.png", rec.Header().Get("Location"))

	q.Set("signature", "forged")
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/thumbnail?"+q.Encode(), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/thumbnail", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type privateBlobs struct{ *storage.MemoryBlobs }

func (b privateBlobs) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := b.MemoryBlobs.Store(ctx, key, data, contentType)
	return "", err
}

func TestStoredLinksOutliveLinkTTL(t *testing.T) {
	blobs := privateBlobs{storage.NewMemoryBlobs("https://bucket.test")}
	signer := signing.NewSigner([]byte("secret"))
	ing := files.NewIngester(blobs, &files.SignedLinker{BaseURL: "https://forms.test", Signer: signer}, nil)
	target := files.Target{Table: "acme#jobs", Domain: "acme", FormID: "jobs"}
	att := ing.Ingest(context.Background(), target, files.Encode("image/png", []byte("png"), "me.png"))
	require.Equal(t, files.StatusStored, att.Status)

	srv := New(Options{}, okPipeline(), signer, blobs, nil)
	srv.now = func() time.Time { return time.Now().Add(400 * 24 * time.Hour) }

	for _, link := range []string{att.File.ViewURL, att.File.ThumbnailURL} {
		u, err := url.Parse(link)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
		assert.Equal(t, http.StatusFound, rec.Code, link)
		assert.Equal(t, "https://bucket.test/"+att.File.Location, rec.Header().Get("Location"))
	}
}

type panickingPipeline struct{}

func (panickingPipeline) Handle(context.Context, *model.Submission) submission.Response {
	panic("boom")
}

func TestPanicRecovered(t *testing.T) {
	srv := New(Options{}, panickingPipeline{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("domain=acme"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(Options{}, okPipeline(), nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/submit", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
