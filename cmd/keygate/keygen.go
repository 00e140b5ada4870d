package main

import (
	"fmt"

	tokens "github.com/dropDatabas3/keygate/internal/security/token"
	"github.com/spf13/cobra"
)

var keygenBytes int

var keygenCmd = &cobra.Command{
	Use:   "keygen-api-key",
	Short: "Generate a random admin API key",
	Long:  `Genera un valor apto para KEYGATE_ADMIN_API_KEY.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := tokens.GenerateOpaqueToken(keygenBytes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), k)
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenBytes, "bytes", 32, "Random bytes before encoding")
}
