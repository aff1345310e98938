package identity

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// AzureCredential exposes the application as an azcore.TokenCredential so
// Azure SDK clients can share its cache.
func (a *ClientApplication) AzureCredential() azcore.TokenCredential {
	return azureCredential{app: a}
}

type azureCredential struct {
	app *ClientApplication
}

// GetToken implements azcore.TokenCredential. The requested scopes must be
// covered by the application's credential; they are logged, not sent.
func (c azureCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) > 0 {
		c.app.logger.Debug("azure sdk token request", "scopes", opts.Scopes)
	}
	tok, err := c.app.GetTokenSilent(ctx)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: tok.AccessToken, ExpiresOn: tok.ExpiresAt}, nil
}
