package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvidersAPI serves scripted registration states: each Get for a
// namespace walks its state sequence, repeating the last entry.
type fakeProvidersAPI struct {
	mu            sync.Mutex
	states        map[string][]string
	registerErrs  map[string]error
	failGets      map[string]int
	registerCalls []string
	getCalls      map[string]int
}

func newFakeProvidersAPI() *fakeProvidersAPI {
	return &fakeProvidersAPI{
		states:       map[string][]string{},
		registerErrs: map[string]error{},
		failGets:     map[string]int{},
		getCalls:     map[string]int{},
	}
}

func (f *fakeProvidersAPI) Register(_ context.Context, ns string, _ *armresources.ProvidersClientRegisterOptions) (armresources.ProvidersClientRegisterResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls = append(f.registerCalls, ns)
	if err := f.registerErrs[ns]; err != nil {
		return armresources.ProvidersClientRegisterResponse{}, err
	}
	return armresources.ProvidersClientRegisterResponse{
		Provider: armresources.Provider{
			Namespace:         to.Ptr(ns),
			RegistrationState: to.Ptr("Registering"),
		},
	}, nil
}

func (f *fakeProvidersAPI) Get(_ context.Context, ns string, _ *armresources.ProvidersClientGetOptions) (armresources.ProvidersClientGetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := f.getCalls[ns]
	f.getCalls[ns] = call + 1

	if f.failGets[ns] > 0 {
		f.failGets[ns]--
		return armresources.ProvidersClientGetResponse{}, errors.New("RESPONSE 500: InternalServerError")
	}

	seq := f.states[ns]
	state := "Registering"
	if len(seq) > 0 {
		if call >= len(seq) {
			call = len(seq) - 1
		}
		state = seq[call]
	}

	return armresources.ProvidersClientGetResponse{
		Provider: armresources.Provider{
			Namespace:         to.Ptr(ns),
			RegistrationState: to.Ptr(state),
		},
	}, nil
}

func (f *fakeProvidersAPI) registered(t *testing.T, res *Result) []string {
	t.Helper()
	out := make([]string, 0, len(res.Registered))
	for _, st := range res.Registered {
		out = append(out, st.Namespace)
	}
	return out
}

// fakeClock advances only when the fake sleeper runs, so poll loops are
// deterministic and instant.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistrar(api API, clock *fakeClock, sleeps *int) *Registrar {
	return NewRegistrarFromAPI(api, &RegistrarOptions{
		Clock: clock.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			*sleeps++
			clock.Advance(d)
			return nil
		},
	})
}

func TestRegisterAllImmediateSuccess(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.HybridCompute"] = []string{"Registered"}
	api.states["Microsoft.Security"] = []string{"Registered"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	res, err := r.RegisterAll(context.Background(), []string{"Microsoft.Security", "Microsoft.HybridCompute"})
	require.NoError(t, err)

	assert.True(t, res.Done())
	assert.ElementsMatch(t, []string{"Microsoft.HybridCompute", "Microsoft.Security"}, api.registered(t, res))
	assert.Empty(t, res.Pending)
	assert.Zero(t, sleeps, "already-registered providers need no waiting")
	assert.ElementsMatch(t, []string{"Microsoft.HybridCompute", "Microsoft.Security"}, api.registerCalls)
}

func TestRegisterAllPollsUntilRegistered(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.HybridCompute"] = []string{"NotRegistered", "Registering", "Registered"}
	api.states["Microsoft.Security"] = []string{"Registered"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	res, err := r.RegisterAll(context.Background(), []string{"Microsoft.HybridCompute", "Microsoft.Security"})
	require.NoError(t, err)

	assert.True(t, res.Done())
	assert.Equal(t, 2, sleeps, "two extra poll rounds for the slow provider")
	assert.Equal(t, 3, api.getCalls["Microsoft.HybridCompute"])
	assert.Equal(t, 1, api.getCalls["Microsoft.Security"], "registered providers leave the poll set")
}

func TestRegisterAllClassifiesPendingAtTimeout(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.AzureArcData"] = []string{"Registering"}
	api.states["Microsoft.Security"] = []string{"Registered"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	res, err := r.RegisterAll(context.Background(), []string{"Microsoft.AzureArcData", "Microsoft.Security"})
	require.NoError(t, err, "a poll timeout is a report, not an error")

	require.Len(t, res.Registered, 1)
	require.Len(t, res.Pending, 1)
	assert.Equal(t, "Microsoft.AzureArcData", res.Pending[0].Namespace)
	assert.Equal(t, "Registering", res.Pending[0].State)
	assert.False(t, res.Done())

	// 60s window, 3s interval: 20 sleeps, one poll round per sleep plus the
	// immediate first round.
	assert.Equal(t, 20, sleeps)
	assert.Equal(t, 21, api.getCalls["Microsoft.AzureArcData"])
}

func TestRegisterAllDedupesNamespaces(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.HybridCompute"] = []string{"Registered"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	res, err := r.RegisterAll(context.Background(), []string{
		"Microsoft.HybridCompute",
		"Microsoft.HybridCompute",
		"Microsoft.HybridCompute",
	})
	require.NoError(t, err)

	assert.Len(t, api.registerCalls, 1)
	assert.Len(t, res.Registered, 1)
	assert.Equal(t, 1, api.getCalls["Microsoft.HybridCompute"])
}

func TestRegisterAllSurvivesRequestFailure(t *testing.T) {
	api := newFakeProvidersAPI()
	api.registerErrs["Microsoft.GuestConfiguration"] = errors.New("RESPONSE 409: Conflict")
	api.states["Microsoft.GuestConfiguration"] = []string{"Registered"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	res, err := r.RegisterAll(context.Background(), []string{"Microsoft.GuestConfiguration"})
	require.NoError(t, err)

	assert.True(t, res.Done(), "a failed request is ignored when polling proves registration")
}

func TestRegisterAllRetriesFailedPolls(t *testing.T) {
	api := newFakeProvidersAPI()
	api.failGets["Microsoft.HybridConnectivity"] = 2
	api.states["Microsoft.HybridConnectivity"] = []string{"Registered"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	res, err := r.RegisterAll(context.Background(), []string{"Microsoft.HybridConnectivity"})
	require.NoError(t, err)

	assert.True(t, res.Done())
	require.Len(t, res.Registered, 1)
	assert.NoError(t, res.Registered[0].Err)
	assert.Equal(t, 3, api.getCalls["Microsoft.HybridConnectivity"], "failed polls keep the namespace in the loop")
}

func TestRegisterAllContextCancellation(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.AzureArcData"] = []string{"Registering"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRegistrarFromAPI(api, &RegistrarOptions{
		Clock: clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			clock.Advance(d)
			return ctx.Err()
		},
	})

	res, err := r.RegisterAll(ctx, []string{"Microsoft.AzureArcData"})
	require.ErrorIs(t, err, context.Canceled)

	// The partial classification still accounts for every namespace.
	require.Len(t, res.Pending, 1)
	assert.Equal(t, "Microsoft.AzureArcData", res.Pending[0].Namespace)
}

func TestRegisterOneUsesSingleProviderWindow(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.HybridCompute"] = []string{"Registering"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	st, err := r.RegisterOne(context.Background(), "Microsoft.HybridCompute")
	require.NoError(t, err)

	assert.False(t, st.Registered())
	assert.Equal(t, "Registering", st.State)

	// 300s window, 10s interval.
	assert.Equal(t, 30, sleeps)
	assert.Equal(t, 31, api.getCalls["Microsoft.HybridCompute"])
}

func TestRegisterOneSuccess(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.Security"] = []string{"Registering", "Registered"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	st, err := r.RegisterOne(context.Background(), "Microsoft.Security")
	require.NoError(t, err)

	assert.True(t, st.Registered())
	assert.Equal(t, 1, sleeps)
}

func TestStatusDoesNotRegister(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.HybridCompute"] = []string{"Registered"}
	api.states["Microsoft.Security"] = []string{"NotRegistered"}
	api.failGets["Microsoft.AzureArcData"] = 1

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := newTestRegistrar(api, clock, &sleeps)

	statuses := r.Status(context.Background(), []string{
		"Microsoft.Security", "Microsoft.HybridCompute", "Microsoft.AzureArcData",
	})

	require.Len(t, statuses, 3)
	assert.Empty(t, api.registerCalls)

	byNS := map[string]Status{}
	for _, st := range statuses {
		byNS[st.Namespace] = st
	}
	assert.Equal(t, "Registered", byNS["Microsoft.HybridCompute"].State)
	assert.Equal(t, "NotRegistered", byNS["Microsoft.Security"].State)
	assert.Equal(t, "Unknown", byNS["Microsoft.AzureArcData"].State)
	assert.Error(t, byNS["Microsoft.AzureArcData"].Err)
}

func TestCustomCadenceOverridesDefaults(t *testing.T) {
	api := newFakeProvidersAPI()
	api.states["Microsoft.Security"] = []string{"Registering"}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	sleeps := 0
	r := NewRegistrarFromAPI(api, &RegistrarOptions{
		PollInterval: 5 * time.Second,
		Timeout:      10 * time.Second,
		Clock:        clock.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps++
			assert.Equal(t, 5*time.Second, d)
			clock.Advance(d)
			return nil
		},
	})

	res, err := r.RegisterAll(context.Background(), []string{"Microsoft.Security"})
	require.NoError(t, err)

	assert.False(t, res.Done())
	assert.Equal(t, 2, sleeps)
}
