package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coullessi/arcdefender/internal/helpers"
	"github.com/coullessi/arcdefender/internal/jq"
	"github.com/coullessi/arcdefender/internal/message"
	"github.com/coullessi/arcdefender/pkg/azure/discovery"
	"github.com/coullessi/arcdefender/pkg/azure/pricing"
)

var (
	pricingAction string
	resourceGroup string
	tagName       string
	tagValue      string
	jqQuery       string
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Read or change Defender for Servers pricing on discovered machines",
	Long: `Discover virtual machines, scale sets and Arc-connected machines, then read
or change the Defender for Servers pricing configuration of each one.

Discovery is scoped either to a resource group or, subscription wide, to a
tag. The four actions map to the resource-level pricing API: read shows the
current configuration, free and standard set the tier, delete removes the
resource-level configuration so the subscription default applies again.`,
	Example: `  arcdefender pricing --action read --resource-group prod-servers
  arcdefender pricing --action standard --tag-name env --tag-value prod
  arcdefender pricing --action delete --resource-group lab --jq '.results[].id'`,
	RunE: runPricing,
}

func init() {
	pricingCmd.Flags().StringVarP(&pricingAction, "action", "a", "", "read, free, standard or delete")
	pricingCmd.Flags().StringVarP(&resourceGroup, "resource-group", "g", "", "limit discovery to one resource group")
	pricingCmd.Flags().StringVar(&tagName, "tag-name", "", "discover resources carrying this tag")
	pricingCmd.Flags().StringVar(&tagValue, "tag-value", "", "tag value to match (with --tag-name)")
	pricingCmd.Flags().StringVarP(&subscriptionID, "subscription", "s", "", "subscription ID")
	pricingCmd.Flags().StringVar(&jqQuery, "jq", "", "jq expression applied to the report before printing")
	pricingCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(pricingCmd)
}

func runPricing(cmd *cobra.Command, args []string) error {
	action, err := pricing.ParseAction(pricingAction)
	if err != nil {
		return err
	}

	query, err := pricingQuery()
	if err != nil {
		return err
	}

	cred, err := newCredential()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	subscription, err := resolveSubscription(ctx, cred)
	if err != nil {
		return err
	}

	if rg := query.ResourceGroup(); rg != "" {
		exists, err := helpers.ResourceGroupExists(ctx, cred, subscription, rg)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("resource group %q not found in subscription %s", rg, subscription)
		}
	}

	message.Info("Discovering machines in %s by %s", subscription, query)

	discoverer, err := discovery.NewDiscoverer(subscription, cred, nil)
	if err != nil {
		return err
	}

	set, err := discoverer.Discover(ctx, query)
	if err != nil {
		return err
	}
	for _, failure := range set.Failures {
		message.Warning("Could not list %s: %v", failure.Kind, failure.Err)
	}
	if set.Count() == 0 {
		message.Warning("No machines matched %s", query)
	}

	engine := pricing.NewEngine(cred, nil)
	report, applyErr := engine.Apply(ctx, action, set)
	if report == nil {
		return applyErr
	}

	renderPricingReport(report)

	if _, err := reportWriter().WriteJSON("pricing-"+string(action), report); err != nil {
		message.Error("Failed to write report: %v", err)
	}

	if jqQuery != "" {
		raw, err := json.Marshal(report)
		if err != nil {
			return err
		}
		filtered, err := jq.PerformJqQuery(raw, jqQuery)
		if err != nil {
			return err
		}
		fmt.Println(string(filtered))
	}

	return applyErr
}

// pricingQuery validates the discovery flags into a single scope.
func pricingQuery() (discovery.Query, error) {
	switch {
	case resourceGroup != "" && tagName != "":
		return discovery.Query{}, fmt.Errorf("--resource-group and --tag-name are mutually exclusive")
	case tagValue != "" && tagName == "":
		return discovery.Query{}, fmt.Errorf("--tag-value requires --tag-name")
	case tagName != "" && tagValue == "":
		return discovery.Query{}, fmt.Errorf("--tag-name requires --tag-value")
	case resourceGroup != "":
		return discovery.ByResourceGroup(resourceGroup), nil
	case tagName != "":
		return discovery.ByTag(tagName, tagValue), nil
	default:
		return discovery.Query{}, fmt.Errorf("pass --resource-group or --tag-name/--tag-value to scope discovery")
	}
}

func renderPricingReport(report *pricing.Report) {
	message.Section("Pricing %s", report.Action)

	for _, kind := range discovery.Kinds {
		count := report.Counts[kind]
		if count == nil {
			continue
		}
		message.Info("%-26s found %-4d succeeded %-4d failed %d", kind, count.Found, count.Succeeded, count.Failed)
	}

	for _, res := range report.Results {
		switch {
		case !res.Succeeded:
			message.Error("%s (%s): %s", res.Name, res.Kind, res.Error)
		case res.State != nil:
			tier := res.State.Tier
			if res.State.SubPlan != "" {
				tier += "/" + res.State.SubPlan
			}
			message.Success("%s (%s): %s", message.Emphasize(res.Name), res.Kind, tier)
		default:
			message.Success("%s (%s): %s applied", message.Emphasize(res.Name), res.Kind, res.Action)
		}
	}
}
