package generate

import (
	"fmt"
	"net/http"
)

// APIError is a non-200 response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether the request is worth retrying: throttling and
// server-side failures are, client errors are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// DefaultSystem is the system prompt used when the caller does not set one.
const DefaultSystem = "You extract return-policy facts from purchase emails. Quote the email verbatim and never guess."
