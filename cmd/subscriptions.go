package cmd

import (
	"github.com/spf13/cobra"

	"github.com/coullessi/arcdefender/internal/helpers"
	"github.com/coullessi/arcdefender/internal/message"
)

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "List the subscriptions visible to the signed-in identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := newCredential()
		if err != nil {
			return err
		}

		subs, err := helpers.ListSubscriptions(cmd.Context(), cred)
		if err != nil {
			return err
		}

		for _, sub := range subs {
			message.Info("%s  %s (%s)", sub.ID, sub.Name, sub.State)
		}
		message.Success("%d subscriptions", len(subs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subscriptionsCmd)
}
