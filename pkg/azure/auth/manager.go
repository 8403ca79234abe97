// Package auth centralizes token acquisition for every Azure call the tool
// makes, so a whole run reuses one cached token per scope instead of hitting
// the identity endpoint on each request.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// ARMScope is the token scope for Azure Resource Manager REST calls.
const ARMScope = "https://management.azure.com/.default"

// DefaultRefreshBuffer is how close to expiry a cached token may get before
// the next access triggers a refresh.
const DefaultRefreshBuffer = 5 * time.Minute

// ManagerOptions configures optional Manager behavior. A nil value is valid.
type ManagerOptions struct {
	// RefreshBuffer overrides DefaultRefreshBuffer.
	RefreshBuffer time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Manager wraps a TokenCredential and caches tokens per scope. A cached token
// is served as long as it stays valid for at least the refresh buffer;
// otherwise the inner credential is asked for a new one. Manager itself
// implements azcore.TokenCredential, so ARM SDK clients constructed with it
// share the same refresh discipline as the raw REST calls.
type Manager struct {
	inner  azcore.TokenCredential
	buffer time.Duration
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]azcore.AccessToken
}

// NewManager wraps cred. opts may be nil.
func NewManager(cred azcore.TokenCredential, opts *ManagerOptions) *Manager {
	m := &Manager{
		inner:  cred,
		buffer: DefaultRefreshBuffer,
		now:    time.Now,
		tokens: make(map[string]azcore.AccessToken),
	}
	if opts != nil {
		if opts.RefreshBuffer > 0 {
			m.buffer = opts.RefreshBuffer
		}
		if opts.Clock != nil {
			m.now = opts.Clock
		}
	}
	return m
}

// GetToken implements azcore.TokenCredential. Requests carrying claims (CAE
// challenges) always go to the inner credential; everything else is served
// from the cache while the token stays outside the refresh buffer.
func (m *Manager) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	key := cacheKey(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.Claims == "" {
		if tok, ok := m.tokens[key]; ok && tok.ExpiresOn.After(m.now().Add(m.buffer)) {
			return tok, nil
		}
	}

	tok, err := m.inner.GetToken(ctx, opts)
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("failed to acquire token for %s: %w", strings.Join(opts.Scopes, " "), err)
	}

	m.tokens[key] = tok
	return tok, nil
}

// Token returns a bearer token for ARM REST calls, refreshed per the same
// buffer rule as GetToken.
func (m *Manager) Token(ctx context.Context) (string, error) {
	tok, err := m.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{ARMScope}})
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

func cacheKey(opts policy.TokenRequestOptions) string {
	return strings.Join(opts.Scopes, " ") + "|" + opts.TenantID
}
