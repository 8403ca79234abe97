// Package pricing applies Microsoft Defender for Servers pricing changes at
// machine granularity. Every machine kind is priced through the same
// virtualMachines pricing subresource under its own resource ID; the calls go
// over plain REST so each service response can be captured verbatim.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coullessi/arcdefender/pkg/azure/discovery"
	"github.com/coullessi/arcdefender/version"
)

const (
	// DefaultBaseURL is the ARM endpoint for the public cloud.
	DefaultBaseURL = "https://management.azure.com"

	// PricingPath is the Defender pricing subresource appended to each
	// machine's resource ID. VMs, scale sets and Arc machines all share the
	// virtualMachines pricing name; it is the plan name, not the machine type.
	PricingPath = "/providers/Microsoft.Security/pricings/virtualMachines"

	// APIVersion pins the Microsoft.Security pricings contract.
	APIVersion = "2024-01-01"

	// DefaultCallTimeout bounds each individual pricing call.
	DefaultCallTimeout = 120 * time.Second
)

// Pricing tiers the service accepts.
const (
	TierFree     = "Free"
	TierStandard = "Standard"
	SubPlanP1    = "P1"
)

// TokenSource hands out a bearer token for ARM calls. It is consulted before
// every request so long batches never run a token past its refresh window.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CallError is a non-2xx service response, kept verbatim.
type CallError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *CallError) Error() string {
	if e.Body == "" {
		return e.Status
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Body)
}

// EngineOptions configures optional Engine behavior. A nil value is valid.
type EngineOptions struct {
	// BaseURL overrides DefaultBaseURL, for sovereign clouds and tests.
	BaseURL string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// CallTimeout overrides DefaultCallTimeout.
	CallTimeout time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Engine executes pricing actions against a set of machines, isolating
// per-machine failures and tallying outcomes per kind.
type Engine struct {
	tokens  TokenSource
	client  *http.Client
	baseURL string
	timeout time.Duration
	now     func() time.Time
}

// NewEngine builds an Engine over the given token source. opts may be nil.
func NewEngine(tokens TokenSource, opts *EngineOptions) *Engine {
	e := &Engine{
		tokens:  tokens,
		client:  &http.Client{},
		baseURL: DefaultBaseURL,
		timeout: DefaultCallTimeout,
		now:     time.Now,
	}
	if opts != nil {
		if opts.BaseURL != "" {
			e.baseURL = strings.TrimSuffix(opts.BaseURL, "/")
		}
		if opts.HTTPClient != nil {
			e.client = opts.HTTPClient
		}
		if opts.CallTimeout > 0 {
			e.timeout = opts.CallTimeout
		}
		if opts.Clock != nil {
			e.now = opts.Clock
		}
	}
	return e
}

// Apply runs the action against every machine in the set, one call per
// machine. A machine appearing more than once is applied only once. A failed
// call marks that machine failed and the batch moves on; only a token
// acquisition failure aborts the run, returning the partial report together
// with the error.
func (e *Engine) Apply(ctx context.Context, action Action, set *discovery.Set) (*Report, error) {
	report := newReport(uuid.New().String(), action, e.now().UTC())

	seen := make(map[string]bool)
	for _, res := range set.All() {
		if res.ID == "" {
			continue
		}
		key := strings.ToLower(res.ID)
		if seen[key] {
			continue
		}
		seen[key] = true

		report.Counts[res.Kind].Found++

		result, err := e.applyOne(ctx, action, res)
		report.record(result)
		if err != nil {
			// Without a token nothing further can succeed.
			report.FinishedAt = e.now().UTC()
			return report, err
		}
	}

	report.FinishedAt = e.now().UTC()
	return report, nil
}

// applyOne issues the single pricing call for one machine. The returned error
// is non-nil only for token acquisition failures; service and transport
// failures are recorded on the result.
func (e *Engine) applyOne(ctx context.Context, action Action, res discovery.Resource) (ResourceResult, error) {
	out := ResourceResult{ID: res.ID, Name: res.Name, Kind: res.Kind, Action: action}

	token, err := e.tokens.Token(ctx)
	if err != nil {
		out.Error = err.Error()
		return out, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	endpoint := e.baseURL + res.ID + PricingPath + "?api-version=" + APIVersion

	var body io.Reader
	switch action {
	case ActionFree:
		payload, _ := json.Marshal(pricingEnvelope{
			Properties: &pricingProperties{PricingTier: TierFree},
		})
		body = bytes.NewReader(payload)
	case ActionStandard:
		payload, _ := json.Marshal(pricingEnvelope{
			Properties: &pricingProperties{PricingTier: TierStandard, SubPlan: SubPlanP1},
		})
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(callCtx, action.method(), endpoint, body)
	if err != nil {
		out.Error = fmt.Sprintf("failed to create request: %v", err)
		return out, nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "arcdefender/"+version.Version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		out.Error = fmt.Sprintf("request failed: %v", err)
		return out, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Error = fmt.Sprintf("failed to read response: %v", err)
		return out, nil
	}

	out.StatusCode = resp.StatusCode
	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		callErr := &CallError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
		out.Error = callErr.Error()
		return out, nil
	}

	out.Succeeded = true
	if action == ActionRead {
		var env pricingEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			out.Succeeded = false
			out.Error = fmt.Sprintf("failed to decode pricing response: %v", err)
			return out, nil
		}
		if env.Properties != nil {
			out.State = &State{
				Tier:                   env.Properties.PricingTier,
				SubPlan:                env.Properties.SubPlan,
				FreeTrialRemainingTime: env.Properties.FreeTrialRemainingTime,
				EnablementTime:         env.Properties.EnablementTime,
				Deprecated:             env.Properties.Deprecated,
				Extensions:             env.Properties.Extensions,
			}
		}
	}

	return out, nil
}

// pricingEnvelope is the ARM wire shape for the pricings resource.
type pricingEnvelope struct {
	Properties *pricingProperties `json:"properties,omitempty"`
}

type pricingProperties struct {
	PricingTier            string          `json:"pricingTier,omitempty"`
	SubPlan                string          `json:"subPlan,omitempty"`
	FreeTrialRemainingTime string          `json:"freeTrialRemainingTime,omitempty"`
	EnablementTime         string          `json:"enablementTime,omitempty"`
	Deprecated             bool            `json:"deprecated,omitempty"`
	Extensions             json.RawMessage `json:"extensions,omitempty"`
}
