package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/coullessi/arcdefender/internal/helpers"
	"github.com/coullessi/arcdefender/internal/message"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Summarize the tenant, subscription and resource footprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := newCredential()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		subscription, err := resolveSubscription(ctx, cred)
		if err != nil {
			return err
		}

		details, err := helpers.GetEnvironmentDetails(ctx, cred, subscription)
		if err != nil {
			return err
		}

		message.Section("Account")
		message.Info("Tenant:       %s (%s)", details.TenantName, details.TenantID)
		message.Info("Subscription: %s (%s)", details.SubscriptionName, details.SubscriptionID)
		message.Info("State:        %s", details.State)

		if len(details.Resources) > 0 {
			message.Section("Resources")
			sort.Slice(details.Resources, func(i, j int) bool {
				return details.Resources[i].Count > details.Resources[j].Count
			})
			for _, rc := range details.Resources {
				message.Info("%-60s %d", rc.ResourceType, rc.Count)
			}
		}

		if _, err := reportWriter().WriteJSON("account", details); err != nil {
			message.Error("Failed to write report: %v", err)
		}
		return nil
	},
}

func init() {
	accountCmd.Flags().StringVarP(&subscriptionID, "subscription", "s", "", "subscription ID")
	rootCmd.AddCommand(accountCmd)
}
