package helpers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/organization"
)

// Authentication modes accepted by the --auth-mode flag.
const (
	AuthModeDefault    = "default"
	AuthModeBrowser    = "browser"
	AuthModeDeviceCode = "devicecode"
	AuthModeCLI        = "cli"
)

var subscriptionIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}-([0-9A-Fa-f]{4}-){3}[0-9A-Fa-f]{12}$`)

// ARMClientOptions returns client options with SDK retries disabled, so
// service failures surface exactly as returned instead of being retried
// behind the caller's back.
func ARMClientOptions() *arm.ClientOptions {
	return &arm.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
}

// ValidSubscriptionID reports whether s looks like an Azure subscription GUID.
func ValidSubscriptionID(s string) bool {
	return subscriptionIDPattern.MatchString(s)
}

// NewCredential builds a TokenCredential for the requested auth mode. An empty
// mode falls back to DefaultAzureCredential, which walks environment,
// managed identity and CLI sources in order.
func NewCredential(mode, tenantID string) (azcore.TokenCredential, error) {
	switch mode {
	case "", AuthModeDefault:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get Azure credentials: %v", err)
		}
		return cred, nil
	case AuthModeBrowser:
		cred, err := azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
			TenantID: tenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get browser credentials: %v", err)
		}
		return cred, nil
	case AuthModeDeviceCode:
		cred, err := azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
			TenantID: tenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get device code credentials: %v", err)
		}
		return cred, nil
	case AuthModeCLI:
		cred, err := azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
			TenantID: tenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get CLI credentials: %v", err)
		}
		return cred, nil
	}
	return nil, fmt.Errorf("unknown auth mode %q (want default, browser, devicecode or cli)", mode)
}

// Subscription is the slice of armsubscriptions data the CLI cares about.
type Subscription struct {
	ID    string
	Name  string
	State string
}

// ListSubscriptions returns all subscriptions accessible to the signed-in
// principal, following every page of the list.
func ListSubscriptions(ctx context.Context, cred azcore.TokenCredential) ([]Subscription, error) {
	subsClient, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %v", err)
	}

	var subs []Subscription
	pager := subsClient.NewListPager(nil)

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %v", err)
		}

		for _, sub := range page.Value {
			if sub == nil || sub.SubscriptionID == nil {
				continue
			}

			s := Subscription{ID: *sub.SubscriptionID, Name: "Unknown", State: "Unknown"}
			if sub.DisplayName != nil {
				s.Name = *sub.DisplayName
			}
			if sub.State != nil {
				s.State = string(*sub.State)
			}

			slog.Debug("found subscription", "id", s.ID, "name", s.Name, "state", s.State)
			subs = append(subs, s)
		}
	}

	if len(subs) == 0 {
		return nil, fmt.Errorf("no accessible subscriptions found")
	}

	return subs, nil
}

// GetSubscriptionDetails gets details about an Azure subscription
func GetSubscriptionDetails(ctx context.Context, cred azcore.TokenCredential, subscriptionID string) (*armsubscriptions.ClientGetResponse, error) {
	subsClient, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %v", err)
	}

	sub, err := subsClient.Get(ctx, subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription details: %v", err)
	}

	return &sub, nil
}

// GetTenantDetails gets the display name and ID of the signed-in tenant
func GetTenantDetails(ctx context.Context, cred azcore.TokenCredential) (string, string, error) {
	graphClient, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create Graph client: %v", err)
	}

	org, err := graphClient.Organization().Get(ctx, &organization.OrganizationRequestBuilderGetRequestConfiguration{})
	if err != nil {
		return "", "", fmt.Errorf("failed to get organization details: %v", err)
	}

	tenantName := "Unknown"
	tenantID := "Unknown"

	if orgValue := org.GetValue(); len(orgValue) > 0 {
		if displayName := orgValue[0].GetDisplayName(); displayName != nil {
			tenantName = *displayName
		}
		if id := orgValue[0].GetId(); id != nil {
			tenantID = *id
		}
	}

	return tenantName, tenantID, nil
}

// ResourceCount holds the count for each Azure resource type
type ResourceCount struct {
	ResourceType string
	Count        int
}

// CountResources counts Azure resources in the subscription by type
func CountResources(ctx context.Context, cred azcore.TokenCredential, subscriptionID string) ([]*ResourceCount, error) {
	client, err := armresources.NewClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource client: %v", err)
	}

	var resourcesCount []*ResourceCount
	pager := client.NewListPager(nil)

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get next page of resources: %v", err)
		}

		for _, resource := range page.Value {
			if resource == nil || resource.Type == nil {
				continue
			}
			resourcesCount = addResourceCount(resourcesCount, *resource.Type)
		}
	}

	return resourcesCount, nil
}

// addResourceCount adds or updates a resource count (private helper)
func addResourceCount(resourcesCount []*ResourceCount, resourceType string) []*ResourceCount {
	for _, rc := range resourcesCount {
		if rc.ResourceType == resourceType {
			rc.Count++
			return resourcesCount
		}
	}

	resourcesCount = append(resourcesCount, &ResourceCount{
		ResourceType: resourceType,
		Count:        1,
	})
	return resourcesCount
}

// AzureEnvironmentDetails holds tenant and subscription information for the
// account summary.
type AzureEnvironmentDetails struct {
	TenantName       string
	TenantID         string
	SubscriptionID   string
	SubscriptionName string
	State            string
	Tags             map[string]*string
	Resources        []*ResourceCount
}

// GetEnvironmentDetails gets all Azure environment details
func GetEnvironmentDetails(ctx context.Context, cred azcore.TokenCredential, subscriptionID string) (*AzureEnvironmentDetails, error) {
	sub, err := GetSubscriptionDetails(ctx, cred, subscriptionID)
	if err != nil {
		return nil, err
	}

	tenantName, tenantID, err := GetTenantDetails(ctx, cred)
	if err != nil {
		return nil, err
	}

	resources, err := CountResources(ctx, cred, subscriptionID)
	if err != nil {
		return nil, err
	}

	stateStr := "Unknown"
	if sub.State != nil {
		stateStr = string(*sub.State)
	}

	details := &AzureEnvironmentDetails{
		TenantName: tenantName,
		TenantID:   tenantID,
		State:      stateStr,
		Tags:       sub.Tags,
		Resources:  resources,
	}
	if sub.SubscriptionID != nil {
		details.SubscriptionID = *sub.SubscriptionID
	}
	if sub.DisplayName != nil {
		details.SubscriptionName = *sub.DisplayName
	}

	return details, nil
}

// ResourceGroupExists checks whether the named resource group exists in the
// subscription.
func ResourceGroupExists(ctx context.Context, cred azcore.TokenCredential, subscriptionID, resourceGroup string) (bool, error) {
	client, err := armresources.NewResourceGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create resource groups client: %v", err)
	}

	resp, err := client.CheckExistence(ctx, resourceGroup, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check resource group %s: %v", resourceGroup, err)
	}

	return resp.Success, nil
}

// ResourceGroupFromID extracts the resource group name from a full ARM
// resource ID such as
// /subscriptions/{sub}/resourceGroups/{rg}/providers/{ns}/{type}/{name}.
func ResourceGroupFromID(resourceID string) (string, error) {
	parts := strings.Split(strings.Trim(resourceID, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if strings.EqualFold(parts[i], "resourceGroups") {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("no resource group in resource ID %q", resourceID)
}

// ResourceNameFromID extracts the trailing name segment from an ARM resource ID.
func ResourceNameFromID(resourceID string) string {
	parts := strings.Split(strings.Trim(resourceID, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
