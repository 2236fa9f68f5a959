package oauth2

import (
	"context"
	"net/http"

	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource mints fresh tokens from the authorization server's token
// endpoint. Implementations are grant strategies; they do not cache.
// Wrap a TokenSource in a TokenClient to get caching and refresh coalescing.
type TokenSource interface {
	Token(ctx context.Context) (*Token, error)
}

var _ TokenSource = (*PasswordTokenSource)(nil)
var _ TokenSource = (*ClientCredentialsTokenSource)(nil)

// PasswordTokenSource obtains tokens through the resource-owner password
// grant: a form-encoded POST carrying the client and resource-owner
// credentials. Client credentials travel in the request body; an empty
// ClientSecret is omitted, as the server expects for public clients.
type PasswordTokenSource struct {
	// TokenURL is the authorization server's token endpoint.
	TokenURL string
	// ClientID and ClientSecret identify the OAuth2 client.
	// ClientSecret may be empty for public clients.
	ClientID     string
	ClientSecret string
	// Username and Password are the resource owner's credentials.
	Username string
	Password string
	// Scope is the space-separated scope string to request.
	Scope string
	// HTTPClient overrides the client used for the token request.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client
}

func (s *PasswordTokenSource) Token(ctx context.Context) (*Token, error) {
	cfg := &xoauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Scopes:       splitScope(s.Scope),
		Endpoint: xoauth2.Endpoint{
			TokenURL:  s.TokenURL,
			AuthStyle: xoauth2.AuthStyleInParams,
		},
	}
	tok, err := cfg.PasswordCredentialsToken(withHTTPClient(ctx, s.HTTPClient), s.Username, s.Password)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return fromRetrievedToken(tok), nil
}

// ClientCredentialsTokenSource obtains tokens through the client credentials
// (system) grant. No resource-owner credentials are involved.
type ClientCredentialsTokenSource struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	// HTTPClient overrides the client used for the token request.
	// If nil, http.DefaultClient is used.
	HTTPClient *http.Client
}

func (s *ClientCredentialsTokenSource) Token(ctx context.Context) (*Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     s.TokenURL,
		Scopes:       splitScope(s.Scope),
		AuthStyle:    xoauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(withHTTPClient(ctx, s.HTTPClient))
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return fromRetrievedToken(tok), nil
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, xoauth2.HTTPClient, client)
}

// fromRetrievedToken converts a token response, lifting the granted scope out
// of the raw response body.
func fromRetrievedToken(tok *xoauth2.Token) *Token {
	scope, _ := tok.Extra("scope").(string)
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
		Scopes:       splitScope(scope),
	}
}
