package oauth2

import (
	"errors"
	"fmt"
	"net/url"

	xoauth2 "golang.org/x/oauth2"
)

// AuthError means the authorization server rejected the credentials or grant,
// returned an unusable token response, or the resource server kept rejecting
// the access token after a refresh.
type AuthError struct {
	// StatusCode is the HTTP status of the rejecting response, or 0 when the
	// failure was not tied to a status (e.g. a malformed token response).
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("oauth2: authorization failed: %s", e.Body)
	}
	return fmt.Sprintf("oauth2: authorization failed (%d): %s", e.StatusCode, e.Body)
}

// TransportError means the server could not be reached: connection failure,
// timeout, or an aborted response. The request may or may not have been
// processed; the caller decides whether to retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oauth2: request failed: %s", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// classifyTokenError maps errors from the token exchange onto the package's
// error taxonomy. A server that answered with a non-2xx status or an unusable
// body rejected the grant; everything network-level is a transport failure.
func classifyTokenError(err error) error {
	var retrieveErr *xoauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{
			StatusCode: retrieveErr.Response.StatusCode,
			Body:       string(retrieveErr.Body),
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransportError{Err: err}
	}
	return &AuthError{Body: err.Error()}
}
