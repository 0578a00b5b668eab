// Package model contains the types shared by every stage of submission
// processing: the ordered field multi-map, schema columns and built rows.
package model

// Fields is an ordered multi-map of form field name to raw string values.
// Keys keep the order in which they were first added, which is the order the
// form posted them and therefore the order new columns are appended in.
type Fields struct {
	keys   []string
	values map[string][]string
}

// NewFields returns an empty Fields.
func NewFields() *Fields {
	return &Fields{values: make(map[string][]string)}
}

// Add appends value to the list stored under name.
func (f *Fields) Add(name string, values ...string) {
	if f.values == nil {
		f.values = make(map[string][]string)
	}
	if _, ok := f.values[name]; !ok {
		f.keys = append(f.keys, name)
		f.values[name] = nil
	}
	f.values[name] = append(f.values[name], values...)
}

// Has reports whether name was posted, even with no values.
func (f *Fields) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Keys returns field names in posting order.
func (f *Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Values returns every value posted under name.
func (f *Fields) Values(name string) []string {
	return f.values[name]
}

// First returns the first value posted under name or "".
func (f *Fields) First(name string) string {
	if vals := f.values[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Len returns the number of distinct names.
func (f *Fields) Len() int {
	return len(f.keys)
}
