package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCredential counts acquisitions and hands out tokens with a fixed TTL.
type fakeCredential struct {
	mu    sync.Mutex
	calls int
	ttl   time.Duration
	now   func() time.Time
	err   error
}

func (f *fakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return azcore.AccessToken{}, f.err
	}
	return azcore.AccessToken{
		Token:     fmt.Sprintf("token-%d", f.calls),
		ExpiresOn: f.now().Add(f.ttl),
	}, nil
}

func (f *fakeCredential) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestManagerReusesTokenUntilBuffer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cred := &fakeCredential{ttl: time.Hour, now: clock}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock})

	for i := 0; i < 10; i++ {
		_, err := mgr.Token(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, cred.callCount(), "a long-lived token should be acquired once")
}

func TestManagerRefreshesInsideBuffer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cred := &fakeCredential{ttl: time.Hour, now: clock}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock})

	_, err := mgr.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, cred.callCount())

	// Still comfortably outside the buffer.
	now = now.Add(50 * time.Minute)
	_, err = mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cred.callCount())

	// 4 minutes of validity left: inside the 5 minute buffer.
	now = now.Add(6 * time.Minute)
	_, err = mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cred.callCount())
}

func TestManagerRefreshesAtExactBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cred := &fakeCredential{ttl: time.Hour, now: clock}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock})

	_, err := mgr.Token(context.Background())
	require.NoError(t, err)

	// Exactly expiry minus buffer counts as stale.
	now = now.Add(55 * time.Minute)
	_, err = mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cred.callCount())
}

func TestManagerPropagatesAcquisitionError(t *testing.T) {
	boom := errors.New("AADSTS700016: application not found")
	clock := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	cred := &fakeCredential{ttl: time.Hour, now: clock, err: boom}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock})

	_, err := mgr.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// Nothing cached after a failure.
	cred.err = nil
	_, err = mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cred.callCount())
}

func TestManagerCachesPerScope(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cred := &fakeCredential{ttl: time.Hour, now: clock}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock})

	_, err := mgr.GetToken(context.Background(), policy.TokenRequestOptions{Scopes: []string{ARMScope}})
	require.NoError(t, err)
	_, err = mgr.GetToken(context.Background(), policy.TokenRequestOptions{Scopes: []string{"https://graph.microsoft.com/.default"}})
	require.NoError(t, err)
	require.Equal(t, 2, cred.callCount())

	// Both scopes now served from cache.
	_, err = mgr.GetToken(context.Background(), policy.TokenRequestOptions{Scopes: []string{ARMScope}})
	require.NoError(t, err)
	_, err = mgr.GetToken(context.Background(), policy.TokenRequestOptions{Scopes: []string{"https://graph.microsoft.com/.default"}})
	require.NoError(t, err)
	assert.Equal(t, 2, cred.callCount())
}

func TestManagerClaimsBypassCache(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cred := &fakeCredential{ttl: time.Hour, now: clock}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock})

	_, err := mgr.Token(context.Background())
	require.NoError(t, err)

	_, err = mgr.GetToken(context.Background(), policy.TokenRequestOptions{
		Scopes: []string{ARMScope},
		Claims: `{"access_token":{"nbf":{"essential":true}}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cred.callCount(), "a claims challenge must reach the credential")
}

func TestManagerConcurrentAccessSingleAcquisition(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cred := &fakeCredential{ttl: time.Hour, now: clock}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Token(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cred.callCount())
}

func TestManagerCustomBuffer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cred := &fakeCredential{ttl: 30 * time.Minute, now: clock}
	mgr := NewManager(cred, &ManagerOptions{Clock: clock, RefreshBuffer: 20 * time.Minute})

	_, err := mgr.Token(context.Background())
	require.NoError(t, err)

	now = now.Add(11 * time.Minute) // 19 minutes left, inside the 20 minute buffer
	_, err = mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cred.callCount())
}
