package core

import "errors"

var (
	// ErrNotFound indicates a required entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a natural-key uniqueness violation.
	ErrConflict = errors.New("already exists")
	// ErrInvalidConfig indicates a caller-supplied configuration that can
	// never succeed; it must not be retried.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// CloneMap returns a shallow copy of m, or nil when m is nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
