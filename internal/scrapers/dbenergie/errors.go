package dbenergie

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/antzucaro/matchr"
)

var (
	ErrMissingToken    = errors.New("missing verification token")
	ErrTokenHasNoValue = errors.New("verification token has no value")
	ErrValueMissing    = errors.New("value missing")
	ErrNotAnObject     = errors.New("response is not a json object")
	ErrKeyNotFound     = errors.New("key not found")
	ErrValueNotAString = errors.New("value is not a string")
	ErrInvalidCookie   = errors.New("invalid cookie")
	ErrUnknownReport   = errors.New("unknown report")
)

// StatusError is returned when the portal answers with anything but 200 OK.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("not ok: %d %s", e.Status, http.StatusText(e.Status))
}

// AuthError wraps every failure that happens while logging in.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("dbenergie: auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ResolveError wraps every failure that happens while mapping between EANs and connection ids.
type ResolveError struct {
	Op  string
	Err error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("dbenergie: resolve: %s: %v", e.Op, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// ReportError wraps every failure of the report protocol.
type ReportError struct {
	Report string
	Op     string
	Err    error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("dbenergie: report %s: %s: %v", e.Report, e.Op, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// MismatchError is returned when a connection id does not map back to the EAN it was resolved from.
type MismatchError struct {
	Requested EAN
	Received  EAN
	ID        ConnectionID
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf(
		"dbenergie: connection %d belongs to ean %q, not %q",
		e.ID, e.Received, e.Requested,
	)
}

// Similarity scores how close the two EANs are (1 is identical), a score close to 1
// usually means the list page matched a neighbouring meter.
func (e *MismatchError) Similarity() float64 {
	return matchr.JaroWinkler(string(e.Requested), string(e.Received), false)
}
