package gmail

import (
	"context"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
	"github.com/nhle/gtd-mail/internal/provider/oauthflow"
)

// TokenURL is Google's OAuth2 token endpoint.
const TokenURL = "https://oauth2.googleapis.com/token"

// ReadonlyScope is the Gmail scope the fetch path needs.
const ReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// Authenticator performs Google OAuth2 token exchanges. The zero value
// talks to the production endpoint; TokenURL can be pointed at a test
// server.
type Authenticator struct {
	TokenURL string
}

func (a Authenticator) flow() oauthflow.Flow {
	url := a.TokenURL
	if url == "" {
		url = TokenURL
	}
	return oauthflow.Flow{Provider: model.ProviderGmail, TokenURL: url}
}

// HandleCallback exchanges an authorization code for Gmail OAuth
// credentials.
func (a Authenticator) HandleCallback(
	ctx context.Context,
	code, redirectURI, clientID, clientSecret string,
) (provider.OAuthCredentials, error) {
	return a.flow().Exchange(ctx, code, redirectURI, clientID, clientSecret)
}

// Refresh exchanges the refresh token for a new access token.
func (a Authenticator) Refresh(
	ctx context.Context,
	creds provider.OAuthCredentials,
) (provider.OAuthCredentials, error) {
	return a.flow().Refresh(ctx, creds)
}
