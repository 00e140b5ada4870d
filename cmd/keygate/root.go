package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var globalOpts struct {
	ConfigPath string
	EnvFile    string
}

var rootCmd = &cobra.Command{
	Use:   "keygate",
	Short: "Identity gateway: identities, sessions and signing keys",
	Long: `keygate emite y verifica sesiones firmadas (EdDSA) sobre un backend de
storage intercambiable (memory, redis, bolt, postgres, sqlite).

Expone dos superficies HTTP: la pública (self-service) y la admin
(protegida por API key).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalOpts.ConfigPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&globalOpts.EnvFile, "env-file", ".env", "Optional .env file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "keygate %s (%s)\n", version, commit)
	},
}
