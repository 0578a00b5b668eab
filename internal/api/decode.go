package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/dharsanguruparan/FormSink/internal/files"
	"github.com/dharsanguruparan/FormSink/internal/model"
)

var errUnsupportedBody = errors.New("unsupported content type")

// decodeForm reads the request body into fields, keeping the posting order.
// Uploaded files in multipart bodies are re-encoded into the inline payload
// format so they reach the ingester the same way as client-encoded files.
func decodeForm(r *http.Request) (*model.Fields, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/x-www-form-urlencoded"
	}
	switch mediaType {
	case "application/x-www-form-urlencoded", "text/plain":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return decodeURLEncoded(string(body))
	case "multipart/form-data":
		return decodeMultipart(r, params["boundary"])
	case "application/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return decodeJSON(body)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedBody, mediaType)
	}
}

func decodeURLEncoded(body string) (*model.Fields, error) {
	fields := model.NewFields()
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("decode field name: %w", err)
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("decode field %s: %w", name, err)
		}
		fields.Add(name, value)
	}
	return fields, nil
}

func decodeMultipart(r *http.Request, boundary string) (*model.Fields, error) {
	if boundary == "" {
		return nil, errors.New("multipart body without boundary")
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expecting multipart form: %w", err)
	}
	fields := model.NewFields()
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}
		name := part.FormName()
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", name, err)
		}
		if name == "" {
			continue
		}
		if part.FileName() == "" {
			fields.Add(name, string(data))
			continue
		}
		if len(data) == 0 {
			fields.Add(name, files.NoFile)
			continue
		}
		contentType := part.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mt
		}
		fields.Add(name, files.Encode(contentType, data, payloadFilename(part.FileName())))
	}
	return fields, nil
}

// decodeJSON accepts a flat object whose values are strings, arrays of
// strings or scalars. Object order is kept.
func decodeJSON(body []byte) (*model.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("decode json: expected an object")
	}
	fields := model.NewFields()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json field %s: %w", name, err)
		}
		values, err := jsonValues(raw)
		if err != nil {
			return nil, fmt.Errorf("decode json field %s: %w", name, err)
		}
		fields.Add(name, values...)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return fields, nil
}

func jsonValues(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			v, err := jsonScalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	v, err := jsonScalar(trimmed)
	if err != nil {
		return nil, err
	}
	return []string{v}, nil
}

func jsonScalar(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0 || string(trimmed) == "null":
		return "", nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case trimmed[0] == '{' || trimmed[0] == '[':
		return "", errors.New("nested values are not supported")
	default:
		return string(trimmed), nil
	}
}

// payloadFilename replaces the characters that separate payload tokens.
func payloadFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', ';', ',', '|':
			return '_'
		}
		return r
	}, files.SanitizeFilename(name))
}
