package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coullessi/arcdefender/internal/message"
	"github.com/coullessi/arcdefender/pkg/azure/access"
)

var accessPrincipalID string

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Check whether the signed-in principal can onboard and manage pricing",
	Long: `List the role assignments the signed-in principal holds at subscription
scope and check them against what onboarding and pricing changes need:
Owner, Contributor or Azure Connected Machine Onboarding to onboard, and
Owner, Contributor or Security Admin to manage pricing.

The principal is resolved through Microsoft Graph, which only works for
signed-in users. Service principals should pass --principal-id.`,
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

		principalID := accessPrincipalID
		if principalID == "" {
			principal, err := access.ResolveSignedInPrincipal(ctx, cred)
			if err != nil {
				return fmt.Errorf("%v (service principals should pass --principal-id)", err)
			}
			message.Info("Signed in as %s (%s)", message.Emphasize(principal.DisplayName), principal.ID)
			principalID = principal.ID
		}

		checker, err := access.NewChecker(subscription, cred, nil)
		if err != nil {
			return err
		}

		assessment, err := checker.Check(ctx, principalID)
		if err != nil {
			return err
		}

		message.Section("Role assignments")
		if len(assessment.Roles) == 0 {
			message.Warning("No role assignments at subscription scope")
		}
		for _, grant := range assessment.Roles {
			name := grant.RoleName
			if name == "" {
				name = grant.RoleDefinitionID
			}
			message.Info("%-40s scope %s", name, grant.Scope)
		}

		if assessment.CanOnboard {
			message.Success("Can onboard machines to Azure Arc")
		} else {
			message.Error("Cannot onboard: needs %s, %s or %s", access.RoleOwner, access.RoleContributor, access.RoleArcOnboarding)
		}
		if assessment.CanManagePricing {
			message.Success("Can manage Defender for Servers pricing")
		} else {
			message.Error("Cannot manage pricing: needs %s, %s or %s", access.RoleOwner, access.RoleContributor, access.RoleSecurityAdmin)
		}

		if !assessment.CanOnboard || !assessment.CanManagePricing {
			return fmt.Errorf("principal %s is missing required roles", principalID)
		}
		return nil
	},
}

func init() {
	accessCmd.Flags().StringVarP(&subscriptionID, "subscription", "s", "", "subscription ID")
	accessCmd.Flags().StringVar(&accessPrincipalID, "principal-id", "", "object ID of the principal to check (default: the signed-in user)")
	rootCmd.AddCommand(accessCmd)
}
