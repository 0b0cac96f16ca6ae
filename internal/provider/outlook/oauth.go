package outlook

import (
	"context"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
	"github.com/nhle/gtd-mail/internal/provider/oauthflow"
)

// TokenURL is Microsoft's common-tenant OAuth2 token endpoint.
const TokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

// MailReadScope is the Graph scope the fetch path needs.
const MailReadScope = "https://graph.microsoft.com/Mail.Read"

// Authenticator performs Microsoft OAuth2 token exchanges. The zero
// value talks to the production endpoint; TokenURL can be pointed at a
// test server.
type Authenticator struct {
	TokenURL string
}

func (a Authenticator) flow() oauthflow.Flow {
	url := a.TokenURL
	if url == "" {
		url = TokenURL
	}
	return oauthflow.Flow{Provider: model.ProviderOutlook, TokenURL: url}
}

// HandleCallback exchanges an authorization code for Outlook OAuth
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
