// Package access verifies that the signed-in principal holds the Azure roles
// an Arc onboarding and Defender pricing run need, before anything mutating
// starts.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"

	"github.com/coullessi/arcdefender/internal/helpers"
)

// Roles that grant the onboarding and pricing operations this tool performs.
const (
	RoleOwner         = "Owner"
	RoleContributor   = "Contributor"
	RoleSecurityAdmin = "Security Admin"
	RoleArcOnboarding = "Azure Connected Machine Onboarding"
)

// RoleAssignmentsAPI is the slice of armauthorization.RoleAssignmentsClient
// the checker uses.
type RoleAssignmentsAPI interface {
	NewListForScopePager(scope string, options *armauthorization.RoleAssignmentsClientListForScopeOptions) *runtime.Pager[armauthorization.RoleAssignmentsClientListForScopeResponse]
}

// RoleDefinitionsAPI is the slice of armauthorization.RoleDefinitionsClient
// the checker uses.
type RoleDefinitionsAPI interface {
	Get(ctx context.Context, scope string, roleDefinitionID string, options *armauthorization.RoleDefinitionsClientGetOptions) (armauthorization.RoleDefinitionsClientGetResponse, error)
}

// Principal identifies the signed-in identity.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	UPN         string `json:"userPrincipalName,omitempty"`
}

// RoleGrant is one role assignment resolved to its display name.
type RoleGrant struct {
	RoleName         string `json:"roleName,omitempty"`
	RoleDefinitionID string `json:"roleDefinitionId"`
	Scope            string `json:"scope"`
}

// Assessment reports what the principal can do in the subscription.
type Assessment struct {
	PrincipalID      string      `json:"principalId"`
	Roles            []RoleGrant `json:"roles"`
	CanOnboard       bool        `json:"canOnboard"`
	CanManagePricing bool        `json:"canManagePricing"`
}

// Checker reads role assignments at subscription scope and resolves their
// role names.
type Checker struct {
	subscriptionID string
	assignments    RoleAssignmentsAPI
	definitions    RoleDefinitionsAPI
}

// NewChecker builds a Checker over real armauthorization clients. clientOpts
// may be nil, in which case SDK retries are disabled.
func NewChecker(subscriptionID string, cred azcore.TokenCredential, clientOpts *arm.ClientOptions) (*Checker, error) {
	if clientOpts == nil {
		clientOpts = helpers.ARMClientOptions()
	}

	assignments, err := armauthorization.NewRoleAssignmentsClient(subscriptionID, cred, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create role assignments client: %v", err)
	}

	definitions, err := armauthorization.NewRoleDefinitionsClient(cred, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create role definitions client: %v", err)
	}

	return NewCheckerFromAPIs(subscriptionID, assignments, definitions), nil
}

// NewCheckerFromAPIs wires explicit API implementations, for tests.
func NewCheckerFromAPIs(subscriptionID string, assignments RoleAssignmentsAPI, definitions RoleDefinitionsAPI) *Checker {
	return &Checker{
		subscriptionID: subscriptionID,
		assignments:    assignments,
		definitions:    definitions,
	}
}

// Check lists the principal's role assignments at subscription scope and
// derives what the tool's operations need. Role name lookups that fail leave
// the grant unnamed rather than failing the assessment.
func (c *Checker) Check(ctx context.Context, principalID string) (*Assessment, error) {
	out := &Assessment{PrincipalID: principalID}

	scope := fmt.Sprintf("/subscriptions/%s", c.subscriptionID)
	pager := c.assignments.NewListForScopePager(scope, &armauthorization.RoleAssignmentsClientListForScopeOptions{})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list role assignments: %w", err)
		}

		for _, assignment := range page.Value {
			if assignment == nil || assignment.Properties == nil {
				continue
			}
			props := assignment.Properties
			if props.PrincipalID == nil || props.RoleDefinitionID == nil {
				continue
			}
			if !strings.EqualFold(*props.PrincipalID, principalID) {
				continue
			}

			grant := RoleGrant{RoleDefinitionID: *props.RoleDefinitionID}
			if props.Scope != nil {
				grant.Scope = *props.Scope
			}

			if resp, err := c.definitions.Get(ctx, grant.Scope, *props.RoleDefinitionID, nil); err == nil {
				if resp.RoleDefinition.Properties != nil && resp.RoleDefinition.Properties.RoleName != nil {
					grant.RoleName = *resp.RoleDefinition.Properties.RoleName
				}
			}

			out.Roles = append(out.Roles, grant)
		}
	}

	out.CanOnboard = hasAnyRole(out.Roles, RoleOwner, RoleContributor, RoleArcOnboarding)
	out.CanManagePricing = hasAnyRole(out.Roles, RoleOwner, RoleContributor, RoleSecurityAdmin)

	return out, nil
}

func hasAnyRole(roles []RoleGrant, names ...string) bool {
	for _, r := range roles {
		for _, name := range names {
			if strings.EqualFold(r.RoleName, name) {
				return true
			}
		}
	}
	return false
}

// ResolveSignedInPrincipal looks up the signed-in user through Microsoft
// Graph. It only works for delegated identities; service principals should
// pass their object ID explicitly.
func ResolveSignedInPrincipal(ctx context.Context, cred azcore.TokenCredential) (Principal, error) {
	graphClient, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, nil)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to create Graph client: %v", err)
	}

	user, err := graphClient.Me().Get(ctx, nil)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to resolve signed-in user: %w", err)
	}

	p := Principal{}
	if id := user.GetId(); id != nil {
		p.ID = *id
	}
	if name := user.GetDisplayName(); name != nil {
		p.DisplayName = *name
	}
	if upn := user.GetUserPrincipalName(); upn != nil {
		p.UPN = *upn
	}
	if p.ID == "" {
		return Principal{}, fmt.Errorf("signed-in user has no object ID")
	}

	return p, nil
}
