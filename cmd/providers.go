package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coullessi/arcdefender/internal/message"
	"github.com/coullessi/arcdefender/pkg/azure/providers"
)

var (
	providerNamespaces   []string
	providerPollInterval time.Duration
	providerTimeout      time.Duration
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage the resource providers Arc onboarding depends on",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

var providersRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the Arc resource providers and wait for them to settle",
	Long: `Submit registration for every required resource provider, then poll until
each one reports Registered or the polling window closes. Providers still
pending when the window closes are reported, not failed; registration keeps
running server side.`,
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

		registrar, err := providers.NewRegistrar(subscription, cred, nil, registrarOptions())
		if err != nil {
			return err
		}

		namespaces := providerNamespaces
		if len(namespaces) == 0 {
			namespaces = providers.DefaultNamespaces
		}

		message.Info("Registering %d resource providers in %s", len(namespaces), subscription)
		result, err := registrar.RegisterAll(ctx, namespaces)
		if result != nil {
			renderProviderStatuses(result.Registered)
			renderProviderStatuses(result.Pending)
			if !result.Done() {
				message.Warning("%d providers still registering; check again with 'arcdefender providers status'", len(result.Pending))
			}
		}
		return err
	},
}

var providersStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the registration state of the Arc resource providers",
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

		registrar, err := providers.NewRegistrar(subscription, cred, nil, nil)
		if err != nil {
			return err
		}

		namespaces := providerNamespaces
		if len(namespaces) == 0 {
			namespaces = providers.DefaultNamespaces
		}

		renderProviderStatuses(registrar.Status(ctx, namespaces))
		return nil
	},
}

func init() {
	providersCmd.PersistentFlags().StringVarP(&subscriptionID, "subscription", "s", "", "subscription ID")
	providersCmd.PersistentFlags().StringSliceVar(&providerNamespaces, "namespaces", nil, "resource provider namespaces (default: the Arc set)")
	providersRegisterCmd.Flags().DurationVar(&providerPollInterval, "poll-interval", 0, "time between registration polls (default depends on provider count)")
	providersRegisterCmd.Flags().DurationVar(&providerTimeout, "timeout", 0, "polling window before pending providers are reported (default depends on provider count)")

	providersCmd.AddCommand(providersRegisterCmd)
	providersCmd.AddCommand(providersStatusCmd)
	rootCmd.AddCommand(providersCmd)
}

func registrarOptions() *providers.RegistrarOptions {
	if providerPollInterval == 0 && providerTimeout == 0 {
		return nil
	}
	return &providers.RegistrarOptions{
		PollInterval: providerPollInterval,
		Timeout:      providerTimeout,
	}
}

func renderProviderStatuses(statuses []providers.Status) {
	for _, st := range statuses {
		switch {
		case st.Registered():
			message.Success("%s: %s", st.Namespace, st.State)
		case st.Err != nil:
			message.Warning("%s: %s (%v)", st.Namespace, st.State, st.Err)
		default:
			message.Warning("%s: %s", st.Namespace, st.State)
		}
	}
}
