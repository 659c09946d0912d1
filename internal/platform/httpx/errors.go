package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the HTTP layers. Domain packages keep their own
// errors; handlers translate them into these before responding.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrTooLarge   = errors.New("payload too large")
)

// RespondError maps errors to HTTP responses using RFC7807. Conflicts and
// unknown errors are answered without leaking their message.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "the resource changed concurrently, retry the request")
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrTooLarge):
		Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Translate wraps err with the HTTP sentinel registered for the first domain
// error it matches. Unmatched errors are returned unchanged.
func Translate(err error, mapping map[error]error) error {
	if err == nil {
		return nil
	}
	for domain, sentinel := range mapping {
		if errors.Is(err, domain) {
			return &translated{sentinel: sentinel, err: err}
		}
	}
	return err
}

type translated struct {
	sentinel error
	err      error
}

func (t *translated) Error() string { return t.err.Error() }

func (t *translated) Unwrap() []error { return []error{t.sentinel, t.err} }
