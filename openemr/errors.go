package openemr

import "fmt"

// APIError is a non-2xx response from the OpenEMR API for a reason unrelated
// to authentication. Interpreting the status (404 vs 429, ...) is the
// caller's responsibility; the client does not retry these.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openemr: request failed (%d): %s", e.StatusCode, e.Body)
}
