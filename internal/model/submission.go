package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved field names. They steer processing and are never form data, except
// for FieldRecipients and the applicant email fields which are also persisted.
const (
	FieldHoneypot   = "_gotcha"
	FieldToken      = "_token"
	FieldHeaders    = "_headers"
	FieldSubject    = "_subject"
	FieldFormID     = "_id"
	FieldDomain     = "domain"
	FieldTable      = "_table"
	FieldRecipients = "CC"
)

// ApplicantEmailFields lists the spellings recognised as the applicant's
// email address.
var ApplicantEmailFields = []string{"Email", "email", "EMAIL", "E-mail", "e-mail", "E-Mail"}

var reserved = map[string]bool{
	FieldHoneypot: true,
	FieldToken:    true,
	FieldHeaders:  true,
	FieldSubject:  true,
	FieldFormID:   true,
	FieldDomain:   true,
	FieldTable:    true,
}

// IsReserved reports whether name is a control field rather than form data.
func IsReserved(name string) bool {
	return reserved[name]
}

// Header is one entry of the JSON encoded header declaration list.
type Header struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Submission wraps the posted fields with typed accessors for reserved keys.
type Submission struct {
	Fields *Fields
}

// NewSubmission wraps fields.
func NewSubmission(fields *Fields) *Submission {
	if fields == nil {
		fields = NewFields()
	}
	return &Submission{Fields: fields}
}

func (s *Submission) Domain() string        { return strings.TrimSpace(s.Fields.First(FieldDomain)) }
func (s *Submission) FormID() string        { return strings.TrimSpace(s.Fields.First(FieldFormID)) }
func (s *Submission) TableOverride() string { return strings.TrimSpace(s.Fields.First(FieldTable)) }
func (s *Submission) Subject() string       { return s.Fields.First(FieldSubject) }
func (s *Submission) Honeypot() string      { return s.Fields.First(FieldHoneypot) }
func (s *Submission) Token() string         { return strings.TrimSpace(s.Fields.First(FieldToken)) }

// TableName is the explicit override when present, otherwise domain#formId.
func (s *Submission) TableName() string {
	if t := s.TableOverride(); t != "" {
		return t
	}
	return s.Domain() + "#" + s.FormID()
}

// Headers decodes the declared header list. An absent field yields nil.
func (s *Submission) Headers() ([]Header, error) {
	raw := strings.TrimSpace(s.Fields.First(FieldHeaders))
	if raw == "" {
		return nil, nil
	}
	var headers []Header
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, fmt.Errorf("decode %s: %w", FieldHeaders, err)
	}
	return headers, nil
}

// DeclaredColumns returns the declared headers followed by every undeclared
// form field, in posting order.
func (s *Submission) DeclaredColumns() ([]Column, error) {
	headers, err := s.Headers()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var cols []Column
	for _, h := range headers {
		name := strings.TrimSpace(h.Name)
		if name == "" || seen[name] || IsReserved(name) {
			continue
		}
		seen[name] = true
		cols = append(cols, Column{Name: name, Kind: ParseKind(h.Type)})
	}
	for _, name := range s.FormFields() {
		if seen[name] {
			continue
		}
		seen[name] = true
		cols = append(cols, Column{Name: name})
	}
	return cols, nil
}

// FormFields returns the non-reserved field names in posting order.
func (s *Submission) FormFields() []string {
	var out []string
	for _, k := range s.Fields.Keys() {
		if !IsReserved(k) {
			out = append(out, k)
		}
	}
	return out
}

// Recipients returns the BCC list from the recipient control field.
func (s *Submission) Recipients() []string {
	return splitAddresses(s.Fields.Values(FieldRecipients))
}

// ApplicantEmails returns every non-empty applicant email value.
func (s *Submission) ApplicantEmails() []string {
	var out []string
	for _, name := range ApplicantEmailFields {
		out = append(out, splitAddresses(s.Fields.Values(name))...)
	}
	return out
}

func splitAddresses(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
