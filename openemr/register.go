package openemr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openemr-ai/go-openemr-client/oauth2"
)

// DefaultClientName is the client name used when a Registration leaves it empty.
const DefaultClientName = "openemr-ai-agent"

// Registration is the dynamic client registration document sent to the
// server. Zero-valued fields are filled with defaults before sending.
type Registration struct {
	ApplicationType string   `json:"application_type"`
	ClientName      string   `json:"client_name"`
	RedirectURIs    []string `json:"redirect_uris"`
	Scope           string   `json:"scope"`
}

// RegistrationResponse is the server's answer to a successful registration.
// ClientSecret is only present for confidential (private) clients.
type RegistrationResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	ClientName              string `json:"client_name,omitempty"`
	Scope                   string `json:"scope,omitempty"`
}

// RegisterClient registers a new OAuth2 client with the OpenEMR server.
// Registration is unauthenticated; httpClient may be nil to use
// http.DefaultClient.
func RegisterClient(ctx context.Context, httpClient *http.Client, baseURL string, reg Registration) (*RegistrationResponse, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if reg.ApplicationType == "" {
		reg.ApplicationType = "private"
	}
	if reg.ClientName == "" {
		reg.ClientName = DefaultClientName
	}
	if len(reg.RedirectURIs) == 0 {
		reg.RedirectURIs = []string{"https://localhost"}
	}
	if reg.Scope == "" {
		reg.Scope = DefaultScope
	}

	payload, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("openemr: encode registration: %w", err)
	}
	registrationURL := strings.TrimRight(baseURL, "/") + registrationPath
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openemr: build registration request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, &oauth2.TransportError{Err: err}
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, &oauth2.TransportError{Err: err}
	}
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		return nil, &oauth2.AuthError{StatusCode: response.StatusCode, Body: string(responseBody)}
	}

	var result RegistrationResponse
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return nil, fmt.Errorf("openemr: parse registration response: %w", err)
	}
	if result.ClientID == "" {
		return nil, &oauth2.AuthError{Body: "registration response missing client_id"}
	}
	return &result, nil
}
