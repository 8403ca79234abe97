// Package providers drives Azure resource provider registration for the
// namespaces Arc onboarding depends on: the registration requests are fired
// without waiting on them, then the provider states are polled until every
// namespace lands or the poll window closes.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	u "github.com/mpvl/unique"
	"golang.org/x/sync/errgroup"

	"github.com/coullessi/arcdefender/internal/helpers"
)

// DefaultNamespaces are the resource providers an Arc onboarding needs.
var DefaultNamespaces = []string{
	"Microsoft.HybridCompute",
	"Microsoft.GuestConfiguration",
	"Microsoft.HybridConnectivity",
	"Microsoft.AzureArcData",
	"Microsoft.Security",
}

// Poll cadence for a batch of namespaces and for a single namespace.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 60 * time.Second
	SinglePollInterval  = 10 * time.Second
	SingleTimeout       = 300 * time.Second
)

// StateRegistered is the terminal registration state ARM reports.
const StateRegistered = "Registered"

// API is the slice of armresources.ProvidersClient the registrar uses.
type API interface {
	Register(ctx context.Context, resourceProviderNamespace string, options *armresources.ProvidersClientRegisterOptions) (armresources.ProvidersClientRegisterResponse, error)
	Get(ctx context.Context, resourceProviderNamespace string, options *armresources.ProvidersClientGetOptions) (armresources.ProvidersClientGetResponse, error)
}

// Status is the last observed state of one namespace.
type Status struct {
	Namespace string `json:"namespace"`
	State     string `json:"state"`
	Err       error  `json:"-"`
}

// Registered reports whether the namespace reached the terminal state.
func (s Status) Registered() bool {
	return s.State == StateRegistered
}

// Result classifies every requested namespace after a registration run.
type Result struct {
	Registered []Status `json:"registered"`
	Pending    []Status `json:"pending"`
}

// Done reports whether no namespace is left pending.
func (r *Result) Done() bool {
	return len(r.Pending) == 0
}

// RegistrarOptions overrides the poll cadence and, for tests, the clock and
// sleep function. A nil value keeps all defaults.
type RegistrarOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration

	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Registrar registers resource providers in one subscription.
type Registrar struct {
	api      API
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRegistrar builds a Registrar over a real ProvidersClient. clientOpts may
// be nil, in which case SDK retries are disabled.
func NewRegistrar(subscriptionID string, cred azcore.TokenCredential, clientOpts *arm.ClientOptions, opts *RegistrarOptions) (*Registrar, error) {
	if clientOpts == nil {
		clientOpts = helpers.ARMClientOptions()
	}
	client, err := armresources.NewProvidersClient(subscriptionID, cred, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create providers client: %v", err)
	}
	return NewRegistrarFromAPI(client, opts), nil
}

// NewRegistrarFromAPI wires an explicit API implementation, for tests.
func NewRegistrarFromAPI(api API, opts *RegistrarOptions) *Registrar {
	r := &Registrar{
		api:   api,
		now:   time.Now,
		sleep: sleepContext,
	}
	if opts != nil {
		r.interval = opts.PollInterval
		r.timeout = opts.Timeout
		if opts.Clock != nil {
			r.now = opts.Clock
		}
		if opts.Sleep != nil {
			r.sleep = opts.Sleep
		}
	}
	return r
}

// RegisterAll fires registration requests for every namespace, then polls
// until each one reports Registered or the poll window closes. Request
// failures are not fatal: the namespace simply stays pending unless a poll
// proves otherwise. The error is non-nil only when the context is canceled;
// running out of the poll window is an ordinary Result with Pending entries.
func (r *Registrar) RegisterAll(ctx context.Context, namespaces []string) (*Result, error) {
	interval, timeout := r.cadence(DefaultPollInterval, DefaultTimeout)
	return r.register(ctx, namespaces, interval, timeout)
}

// RegisterOne registers a single namespace with the longer single-provider
// poll window.
func (r *Registrar) RegisterOne(ctx context.Context, namespace string) (Status, error) {
	interval, timeout := r.cadence(SinglePollInterval, SingleTimeout)
	res, err := r.register(ctx, []string{namespace}, interval, timeout)
	if len(res.Registered) == 1 {
		return res.Registered[0], err
	}
	if len(res.Pending) == 1 {
		return res.Pending[0], err
	}
	return Status{Namespace: namespace}, err
}

// Status reads the current registration state of each namespace without
// issuing registration requests. Lookup failures are recorded per namespace.
func (r *Registrar) Status(ctx context.Context, namespaces []string) []Status {
	names := dedupe(namespaces)
	out := make([]Status, 0, len(names))
	for _, ns := range names {
		st := Status{Namespace: ns, State: "Unknown"}
		resp, err := r.api.Get(ctx, ns, nil)
		if err != nil {
			st.Err = err
		} else if resp.RegistrationState != nil {
			st.State = *resp.RegistrationState
		}
		out = append(out, st)
	}
	return out
}

func (r *Registrar) cadence(defInterval, defTimeout time.Duration) (time.Duration, time.Duration) {
	interval, timeout := r.interval, r.timeout
	if interval <= 0 {
		interval = defInterval
	}
	if timeout <= 0 {
		timeout = defTimeout
	}
	return interval, timeout
}

func (r *Registrar) register(ctx context.Context, namespaces []string, interval, timeout time.Duration) (*Result, error) {
	names := dedupe(namespaces)

	pending := make(map[string]*Status, len(names))
	for _, ns := range names {
		pending[ns] = &Status{Namespace: ns, State: "Unknown"}
	}

	// Fire every registration request; nothing waits on the responses.
	var g errgroup.Group
	for _, ns := range names {
		g.Go(func() error {
			if _, err := r.api.Register(ctx, ns, nil); err != nil {
				slog.Warn("registration request failed", "namespace", ns, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{}
	deadline := r.now().Add(timeout)

	for {
		for _, ns := range names {
			st, ok := pending[ns]
			if !ok {
				continue
			}

			resp, err := r.api.Get(ctx, ns, nil)
			if err != nil {
				// Leave the namespace pending; the next round retries.
				st.State = "Unknown"
				st.Err = err
				continue
			}

			st.Err = nil
			if resp.RegistrationState != nil {
				st.State = *resp.RegistrationState
			}
			if st.Registered() {
				result.Registered = append(result.Registered, *st)
				delete(pending, ns)
			}
		}

		if len(pending) == 0 {
			break
		}
		if !r.now().Before(deadline) {
			break
		}
		if err := r.sleep(ctx, interval); err != nil {
			collectPending(result, names, pending)
			return result, err
		}
	}

	collectPending(result, names, pending)

	slog.Debug("provider registration finished",
		"registered", len(result.Registered),
		"pending", len(result.Pending))

	return result, nil
}

func collectPending(result *Result, names []string, pending map[string]*Status) {
	for _, ns := range names {
		if st, ok := pending[ns]; ok {
			result.Pending = append(result.Pending, *st)
		}
	}
}

// dedupe sorts and removes duplicate namespaces.
func dedupe(namespaces []string) []string {
	names := append([]string(nil), namespaces...)
	r := u.StringSlice{P: &names}
	u.Sort(r)
	u.Strings(r.P)
	names = *r.P
	return names
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
