package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// configFile is the --config flag shared by every subcommand
var configFile string

// NewRootCmd creates the rolemapper command tree
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rolemapper",
		Short: "Issue tokens carrying client role attributes",
		Long: `rolemapper issues access tokens, ID tokens and userinfo responses
for sessions of a realm. The role attributes mapper adds a claim describing
the attributes of every role the user holds on the requesting client.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: $ROLEMAPPER_CONFIG)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewClaimsCmd())
	cmd.AddCommand(NewVerifyCmd())

	return cmd
}

// resolveConfigPath returns --config, falling back to ROLEMAPPER_CONFIG
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	return os.Getenv("ROLEMAPPER_CONFIG")
}
