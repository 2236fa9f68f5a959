package oauth2

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

var _ http.RoundTripper = &Transport{}

// NewClient returns an http.Client whose requests carry bearer tokens from the
// given TokenClient.
func NewClient(tokenClient *TokenClient) *http.Client {
	return &http.Client{
		Transport: &Transport{TokenClient: tokenClient},
	}
}

// Transport is an http.RoundTripper that authenticates outgoing requests with
// bearer tokens. A request that comes back 401 Unauthorized invalidates the
// cached token and is replayed exactly once with a freshly requested one; the
// second response is returned as-is, 401 included, so a misconfigured client
// cannot retry forever.
type Transport struct {
	TokenClient *TokenClient
	// UnderlyingTransport performs the actual requests.
	// If nil, http.DefaultTransport is used.
	UnderlyingTransport http.RoundTripper
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	if t.TokenClient == nil {
		return nil, fmt.Errorf("oauth2: Transport has no TokenClient")
	}
	base := t.UnderlyingTransport
	if base == nil {
		base = http.DefaultTransport
	}

	request, err := replayableRequest(request)
	if err != nil {
		return nil, err
	}

	token, err := t.TokenClient.Token(request.Context())
	if err != nil {
		return nil, fmt.Errorf("oauth2: token request (resource=%s): %w", request.URL.String(), err)
	}
	attempt, err := requestWithToken(request, token)
	if err != nil {
		return nil, err
	}
	httpResponse, err := base.RoundTrip(attempt)
	if err != nil || httpResponse.StatusCode != http.StatusUnauthorized {
		return httpResponse, err
	}

	// The resource server rejected the token: request a new one and replay once.
	discardBody(httpResponse)
	t.TokenClient.Invalidate(token)
	token, err = t.TokenClient.Token(request.Context())
	if err != nil {
		return nil, fmt.Errorf("oauth2: token request (resource=%s): %w", request.URL.String(), err)
	}
	attempt, err = requestWithToken(request, token)
	if err != nil {
		return nil, err
	}
	return base.RoundTrip(attempt)
}

// replayableRequest makes sure the request body can be sent more than once.
func replayableRequest(request *http.Request) (*http.Request, error) {
	if request.Body == nil || request.GetBody != nil {
		return request, nil
	}
	requestBody, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, err
	}
	request = request.Clone(request.Context())
	request.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	request.Body, _ = request.GetBody()
	return request, nil
}

func requestWithToken(request *http.Request, token *Token) (*http.Request, error) {
	request = request.Clone(request.Context())
	if request.GetBody != nil {
		var err error
		request.Body, err = request.GetBody()
		if err != nil {
			return nil, err
		}
	}
	request.Header.Set("Authorization", fmt.Sprintf("%s %s", token.Type(), token.AccessToken))
	return request, nil
}

func discardBody(httpResponse *http.Response) {
	if httpResponse.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(httpResponse.Body, 1<<20))
	_ = httpResponse.Body.Close()
}
