// Package connectivity probes the service endpoints an Arc onboarding
// depends on. A probe asks only whether the endpoint answers HTTP at all;
// the status code does not matter, a 403 from a firewall-fronted endpoint
// still proves the path is open.
package connectivity

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultEndpoints are the endpoints the Connected Machine agent and its
// onboarding path need to reach.
var DefaultEndpoints = []string{
	"https://management.azure.com",
	"https://login.microsoftonline.com",
	"https://login.windows.net",
	"https://aka.ms",
	"https://download.microsoft.com",
	"https://packages.microsoft.com",
	"https://gbl.his.arc.azure.com",
	"https://agentserviceapi.guestconfiguration.azure.com",
}

// DefaultProbeTimeout bounds each individual probe.
const DefaultProbeTimeout = 10 * time.Second

const defaultConcurrency = 4

// Result is the outcome of one endpoint probe.
type Result struct {
	Endpoint  string        `json:"endpoint"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// CheckerOptions configures optional Checker behavior. A nil value is valid.
type CheckerOptions struct {
	// Timeout overrides DefaultProbeTimeout.
	Timeout time.Duration

	// Concurrency caps parallel probes.
	Concurrency int

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Checker probes endpoints concurrently.
type Checker struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
}

// NewChecker builds a Checker. opts may be nil.
func NewChecker(opts *CheckerOptions) *Checker {
	c := &Checker{
		client: &http.Client{
			// A redirect answer already proves reachability.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:     DefaultProbeTimeout,
		concurrency: defaultConcurrency,
	}
	if opts != nil {
		if opts.Timeout > 0 {
			c.timeout = opts.Timeout
		}
		if opts.Concurrency > 0 {
			c.concurrency = opts.Concurrency
		}
		if opts.HTTPClient != nil {
			c.client = opts.HTTPClient
		}
	}
	return c
}

// Check probes every endpoint and returns one result per endpoint in input
// order.
func (c *Checker) Check(ctx context.Context, endpoints []string) []Result {
	results := make([]Result, len(endpoints))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			results[i] = c.probe(ctx, endpoint)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Checker) probe(ctx context.Context, endpoint string) Result {
	out := Result{Endpoint: endpoint}

	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	out.Latency = time.Since(start)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	resp.Body.Close()

	out.Reachable = true
	return out
}

// Unreachable filters the results down to the failed probes.
func Unreachable(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Reachable {
			out = append(out, r)
		}
	}
	return out
}
