package validate

import "fmt"

// Result is the outcome of one validation pass: blocking errors,
// non-blocking warnings and optional auxiliary data. It is built fresh
// per call and never persisted.
type Result struct {
	Errors   []string       `json:"errors"`
	Warnings []string       `json:"warnings"`
	Data     map[string]any `json:"data,omitempty"`
}

// Valid reports whether the checked input may be committed. Warnings
// never block.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) Errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge appends another result's errors, warnings and data.
func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	for k, v := range other.Data {
		r.Set(k, v)
	}
}

// Set records auxiliary data, e.g. computed child counts.
func (r *Result) Set(key string, value any) {
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	r.Data[key] = value
}
