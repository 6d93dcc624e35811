package ordering

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials fetches access tokens with the OAuth2 client-credentials grant.
type ClientCredentials struct {
	cfg clientcredentials.Config
}

func NewClientCredentials(tokenURL, clientID, clientSecret string, scopes ...string) *ClientCredentials {
	return &ClientCredentials{cfg: clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}}
}

// AccessToken implements pipeline.TokenProvider.
func (c *ClientCredentials) AccessToken(ctx context.Context) (string, error) {
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("client credentials token: %w", err)
	}
	return tok.AccessToken, nil
}

// StaticToken always returns the same token. Used when no token endpoint is configured.
type StaticToken string

func (s StaticToken) AccessToken(context.Context) (string, error) {
	return string(s), nil
}
