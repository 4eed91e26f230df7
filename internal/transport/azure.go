package transport

import (
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/vyrodovalexey/eogate/internal/auth"
)

// AzurePolicy signs requests inside an Azure SDK pipeline. Register it in
// policy.ClientOptions.PerCallPolicies; retries resend the signed request.
type AzurePolicy struct {
	source signerSource
}

// NewAzurePolicy returns a pipeline policy applying signer.
func NewAzurePolicy(signer auth.RequestSigner) *AzurePolicy {
	return &AzurePolicy{source: staticSource(signer)}
}

// NewProviderPolicy returns a pipeline policy that authenticates provider
// through a for every request.
func NewProviderPolicy(a Authenticator, provider string) *AzurePolicy {
	return &AzurePolicy{source: providerSource(a, provider)}
}

// Do implements policy.Policy.
func (p *AzurePolicy) Do(req *policy.Request) (*http.Response, error) {
	raw := req.Raw()
	signer, err := p.source(raw.Context())
	if err != nil {
		return nil, err
	}
	if err := signer.Sign(raw); err != nil {
		return nil, err
	}
	return req.Next()
}

// Ensure AzurePolicy implements policy.Policy.
var _ policy.Policy = (*AzurePolicy)(nil)
