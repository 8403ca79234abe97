package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coullessi/arcdefender/internal/helpers"
	"github.com/coullessi/arcdefender/internal/logs"
	"github.com/coullessi/arcdefender/internal/message"
	"github.com/coullessi/arcdefender/internal/output"
	"github.com/coullessi/arcdefender/pkg/azure/auth"
)

var (
	cfgFile   string
	outputDir string
	authMode  string
	tenantID  string
	quiet     bool
	noColor   bool
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arcdefender",
	Short: "arcdefender prepares Windows servers for Azure Arc and Defender for Servers.",
	Long: `arcdefender discovers virtual machines, scale sets and Arc-connected machines
in an Azure subscription, registers the resource providers Arc onboarding
depends on, and reads or changes the Microsoft Defender for Servers pricing
configuration of each discovered resource.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		message.SetQuiet(quiet)
		message.SetNoColor(noColor)

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logs.ConsoleLogger(level)

		message.Banner()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.arcdefender.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", output.DefaultDir, "directory run reports are written to")
	rootCmd.PersistentFlags().StringVar(&authMode, "auth-mode", helpers.AuthModeDefault, "authentication mode: default, browser, devicecode or cli")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "Microsoft Entra tenant ID")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress status messages")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".arcdefender" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".arcdefender")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newCredential builds the credential every subcommand shares. The token
// manager wraps the raw credential so repeated SDK calls reuse one token
// until it nears expiry.
func newCredential() (*auth.Manager, error) {
	cred, err := helpers.NewCredential(authMode, tenantID)
	if err != nil {
		return nil, err
	}
	return auth.NewManager(cred, nil), nil
}

// reportWriter returns the JSON report writer for the configured output
// directory.
func reportWriter() *output.Writer {
	return output.NewWriter(outputDir)
}
