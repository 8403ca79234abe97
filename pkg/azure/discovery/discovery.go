// Package discovery enumerates the machines a subscription holds across the
// three kinds Defender for Servers prices: native virtual machines, scale
// sets and Arc-connected machines.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/hybridcompute/armhybridcompute"

	"github.com/coullessi/arcdefender/internal/helpers"
)

// VirtualMachinesAPI is the slice of armcompute.VirtualMachinesClient the
// discoverer uses.
type VirtualMachinesAPI interface {
	NewListPager(resourceGroupName string, options *armcompute.VirtualMachinesClientListOptions) *runtime.Pager[armcompute.VirtualMachinesClientListResponse]
	NewListAllPager(options *armcompute.VirtualMachinesClientListAllOptions) *runtime.Pager[armcompute.VirtualMachinesClientListAllResponse]
}

// ScaleSetsAPI is the slice of armcompute.VirtualMachineScaleSetsClient the
// discoverer uses.
type ScaleSetsAPI interface {
	NewListPager(resourceGroupName string, options *armcompute.VirtualMachineScaleSetsClientListOptions) *runtime.Pager[armcompute.VirtualMachineScaleSetsClientListResponse]
	NewListAllPager(options *armcompute.VirtualMachineScaleSetsClientListAllOptions) *runtime.Pager[armcompute.VirtualMachineScaleSetsClientListAllResponse]
}

// ArcMachinesAPI is the slice of armhybridcompute.MachinesClient the
// discoverer uses.
type ArcMachinesAPI interface {
	NewListByResourceGroupPager(resourceGroupName string, options *armhybridcompute.MachinesClientListByResourceGroupOptions) *runtime.Pager[armhybridcompute.MachinesClientListByResourceGroupResponse]
	NewListBySubscriptionPager(options *armhybridcompute.MachinesClientListBySubscriptionOptions) *runtime.Pager[armhybridcompute.MachinesClientListBySubscriptionResponse]
}

// Discoverer lists machines through the ARM SDK clients, following every page
// of every listing.
type Discoverer struct {
	vms  VirtualMachinesAPI
	sets ScaleSetsAPI
	arc  ArcMachinesAPI
}

// NewDiscoverer builds a Discoverer over real ARM clients for the
// subscription. opts may be nil, in which case SDK retries are disabled so
// failures surface exactly as the service returned them.
func NewDiscoverer(subscriptionID string, cred azcore.TokenCredential, opts *arm.ClientOptions) (*Discoverer, error) {
	if opts == nil {
		opts = helpers.ARMClientOptions()
	}

	vmClient, err := armcompute.NewVirtualMachinesClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create VM client: %v", err)
	}

	setClient, err := armcompute.NewVirtualMachineScaleSetsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create scale set client: %v", err)
	}

	arcClient, err := armhybridcompute.NewMachinesClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Arc machines client: %v", err)
	}

	return &Discoverer{vms: vmClient, sets: setClient, arc: arcClient}, nil
}

// NewDiscovererFromAPIs wires explicit API implementations, for tests.
func NewDiscovererFromAPIs(vms VirtualMachinesAPI, sets ScaleSetsAPI, arc ArcMachinesAPI) *Discoverer {
	return &Discoverer{vms: vms, sets: sets, arc: arc}
}

// Discover lists the machines selected by q. A kind whose listing fails is
// recorded in Set.Failures and the remaining kinds are still listed; the
// returned error is non-nil only when every kind failed.
func (d *Discoverer) Discover(ctx context.Context, q Query) (*Set, error) {
	set := &Set{}

	vms, err := d.listVirtualMachines(ctx, q)
	if err != nil {
		set.Failures = append(set.Failures, Failure{Kind: KindVirtualMachine, Err: err})
	} else {
		set.VirtualMachines = vms
	}

	scaleSets, err := d.listScaleSets(ctx, q)
	if err != nil {
		set.Failures = append(set.Failures, Failure{Kind: KindScaleSet, Err: err})
	} else {
		set.ScaleSets = scaleSets
	}

	arcMachines, err := d.listArcMachines(ctx, q)
	if err != nil {
		set.Failures = append(set.Failures, Failure{Kind: KindArcMachine, Err: err})
	} else {
		set.ArcMachines = arcMachines
	}

	slog.Debug("discovery finished",
		"query", q.String(),
		"virtualMachines", len(set.VirtualMachines),
		"scaleSets", len(set.ScaleSets),
		"arcMachines", len(set.ArcMachines),
		"failures", len(set.Failures))

	if len(set.Failures) == len(Kinds) {
		errs := make([]error, 0, len(set.Failures))
		for _, f := range set.Failures {
			errs = append(errs, f.Err)
		}
		return set, fmt.Errorf("failed to list any resources: %w", errors.Join(errs...))
	}

	return set, nil
}

func (d *Discoverer) listVirtualMachines(ctx context.Context, q Query) ([]Resource, error) {
	var out []Resource

	if rg := q.ResourceGroup(); rg != "" {
		pager := d.vms.NewListPager(rg, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list virtual machines: %w", err)
			}
			for _, vm := range page.Value {
				if r, ok := vmResource(vm); ok {
					out = append(out, r)
				}
			}
		}
		return out, nil
	}

	pager := d.vms.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list virtual machines: %w", err)
		}
		for _, vm := range page.Value {
			r, ok := vmResource(vm)
			if ok && q.matches(r.Tags) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (d *Discoverer) listScaleSets(ctx context.Context, q Query) ([]Resource, error) {
	var out []Resource

	if rg := q.ResourceGroup(); rg != "" {
		pager := d.sets.NewListPager(rg, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list scale sets: %w", err)
			}
			for _, ss := range page.Value {
				if r, ok := scaleSetResource(ss); ok {
					out = append(out, r)
				}
			}
		}
		return out, nil
	}

	pager := d.sets.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list scale sets: %w", err)
		}
		for _, ss := range page.Value {
			r, ok := scaleSetResource(ss)
			if ok && q.matches(r.Tags) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (d *Discoverer) listArcMachines(ctx context.Context, q Query) ([]Resource, error) {
	var out []Resource

	if rg := q.ResourceGroup(); rg != "" {
		pager := d.arc.NewListByResourceGroupPager(rg, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list Arc machines: %w", err)
			}
			for _, m := range page.Value {
				if r, ok := arcResource(m); ok {
					out = append(out, r)
				}
			}
		}
		return out, nil
	}

	pager := d.arc.NewListBySubscriptionPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list Arc machines: %w", err)
		}
		for _, m := range page.Value {
			r, ok := arcResource(m)
			if ok && q.matches(r.Tags) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func vmResource(vm *armcompute.VirtualMachine) (Resource, bool) {
	if vm == nil || vm.ID == nil || vm.Name == nil || vm.Location == nil {
		slog.Warn("skipping virtual machine missing required properties")
		return Resource{}, false
	}
	return Resource{
		ID:            *vm.ID,
		Name:          *vm.Name,
		Kind:          KindVirtualMachine,
		Location:      *vm.Location,
		ResourceGroup: resourceGroupOf(*vm.ID),
		Tags:          vm.Tags,
	}, true
}

func scaleSetResource(ss *armcompute.VirtualMachineScaleSet) (Resource, bool) {
	if ss == nil || ss.ID == nil || ss.Name == nil || ss.Location == nil {
		slog.Warn("skipping scale set missing required properties")
		return Resource{}, false
	}
	return Resource{
		ID:            *ss.ID,
		Name:          *ss.Name,
		Kind:          KindScaleSet,
		Location:      *ss.Location,
		ResourceGroup: resourceGroupOf(*ss.ID),
		Tags:          ss.Tags,
	}, true
}

func arcResource(m *armhybridcompute.Machine) (Resource, bool) {
	if m == nil || m.ID == nil || m.Name == nil || m.Location == nil {
		slog.Warn("skipping Arc machine missing required properties")
		return Resource{}, false
	}
	return Resource{
		ID:            *m.ID,
		Name:          *m.Name,
		Kind:          KindArcMachine,
		Location:      *m.Location,
		ResourceGroup: resourceGroupOf(*m.ID),
		Tags:          m.Tags,
	}, true
}

func resourceGroupOf(resourceID string) string {
	rg, err := helpers.ResourceGroupFromID(resourceID)
	if err != nil {
		return ""
	}
	return rg
}
