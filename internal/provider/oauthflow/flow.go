// Package oauthflow implements the OAuth2 authorization-code and
// refresh-token exchanges shared by the Gmail and Outlook clients.
// Both exchanges are application/x-www-form-urlencoded POSTs against the
// provider's published token endpoint, via golang.org/x/oauth2.
package oauthflow

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// Flow performs token exchanges for one provider's endpoint.
type Flow struct {
	// Provider tags errors and resulting credentials.
	Provider model.EmailProvider

	// TokenURL is the provider's token endpoint.
	TokenURL string
}

func (f Flow) config(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  f.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Exchange trades an authorization code for tokens
// (grant_type=authorization_code).
func (f Flow) Exchange(
	ctx context.Context,
	code, redirectURI, clientID, clientSecret string,
) (provider.OAuthCredentials, error) {
	cfg := f.config(clientID, clientSecret, redirectURI)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return provider.OAuthCredentials{}, f.mapError("exchanging authorization code", err)
	}

	return f.credentials(tok, clientID, clientSecret), nil
}

// Refresh trades a refresh token for a new access token
// (grant_type=refresh_token). Providers may rotate the refresh token;
// when they do, the rotated value replaces the old one in the result.
func (f Flow) Refresh(
	ctx context.Context,
	creds provider.OAuthCredentials,
) (provider.OAuthCredentials, error) {
	cfg := f.config(creds.ClientID, creds.ClientSecret, "")

	src := cfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: creds.RefreshToken,
	})
	tok, err := src.Token()
	if err != nil {
		return provider.OAuthCredentials{}, f.mapError("refreshing access token", err)
	}

	next := f.credentials(tok, creds.ClientID, creds.ClientSecret)
	if next.RefreshToken == "" {
		// Endpoint did not rotate the refresh token; keep the old one.
		next.RefreshToken = creds.RefreshToken
	}
	if len(next.Scope) == 0 {
		next.Scope = creds.Scope
	}
	return next, nil
}

func (f Flow) credentials(
	tok *oauth2.Token,
	clientID, clientSecret string,
) provider.OAuthCredentials {
	creds := provider.OAuthCredentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		creds.Scope = strings.Fields(scope)
	}
	return creds
}

// mapError classifies a token endpoint failure. An invalid_grant means
// the refresh token itself is dead and the account must be reconnected;
// other 4xx responses are credential problems; everything else is
// treated as transient.
func (f Flow) mapError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.ErrorCode == "invalid_grant" ||
			strings.Contains(string(rErr.Body), "invalid_grant") {
			return &provider.AuthError{
				Provider:  f.Provider,
				Reconnect: true,
				Message:   op + ": refresh token no longer accepted",
				Err:       err,
			}
		}
		if rErr.Response != nil && rErr.Response.StatusCode < 500 {
			return &provider.AuthError{
				Provider: f.Provider,
				Message:  op + ": token endpoint rejected the request",
				Err:      err,
			}
		}
	}
	return &provider.TransientError{
		Provider: f.Provider,
		Message:  op,
		Err:      err,
	}
}
