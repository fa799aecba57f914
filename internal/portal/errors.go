package portal

import "fmt"

// Kind classifies a session driver failure. The values surface verbatim in
// snapshot error strings, so they double as the diagnostic label.
type Kind string

// Driver failure kinds.
const (
	KindLoginRejected    Kind = "LoginRejected"
	KindLoginTimeout     Kind = "LoginTimeout"
	KindNavigationFailed Kind = "NavigationFailed"
	KindRenderTimeout    Kind = "RenderTimeout"
)

// Error is a classified session driver failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
