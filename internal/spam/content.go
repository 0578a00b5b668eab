package spam

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)https?://`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// contentFilter holds the compiled content heuristics.
type contentFilter struct {
	maxURLs  int
	keywords []string
	scripts  []*unicode.RangeTable
}

func newContentFilter(maxURLs int, blocklist, scripts []string) *contentFilter {
	f := &contentFilter{maxURLs: maxURLs}
	for _, kw := range blocklist {
		if kw = f.normalize(strings.TrimSpace(kw)); kw != "" {
			f.keywords = append(f.keywords, kw)
		}
	}
	for _, name := range scripts {
		if table, ok := unicode.Scripts[name]; ok {
			f.scripts = append(f.scripts, table)
		}
	}
	return f
}

// normalize folds compatibility forms and case so that full-width or
// mixed-case spellings match the blocklist. Casers are stateful, so each call
// gets its own.
func (f *contentFilter) normalize(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// check returns the rejecting reason for text, or "" when it looks clean.
func (f *contentFilter) check(text string) (Reason, string) {
	if n := len(urlPattern.FindAllStringIndex(text, -1)); n > f.maxURLs {
		return ReasonLinks, ""
	}
	for _, r := range text {
		if len(f.scripts) > 0 && unicode.IsOneOf(f.scripts, r) {
			return ReasonScript, string(r)
		}
	}
	folded := f.normalize(text)
	for _, kw := range f.keywords {
		if strings.Contains(folded, kw) {
			return ReasonKeyword, kw
		}
	}
	return ReasonNone, ""
}

// validEmail reports whether addr has a basic local@domain.tld shape.
func validEmail(addr string) bool {
	return emailPattern.MatchString(strings.TrimSpace(addr))
}
