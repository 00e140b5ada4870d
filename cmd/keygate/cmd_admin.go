package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/dropDatabas3/keygate/internal/config"
	"github.com/spf13/cobra"
)

var adminOpts struct {
	Addr   string
	Prefix string
	APIKey string
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Call the admin surface of a running gateway",
	Long: `Cliente de la superficie admin. La API key se toma de --api-key o de
KEYGATE_ADMIN_API_KEY.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if adminOpts.APIKey == "" {
			adminOpts.APIKey = os.Getenv(config.EnvPrefix + "ADMIN_API_KEY")
		}
		if adminOpts.APIKey == "" {
			return errors.New("admin api key required (--api-key or " + config.EnvPrefix + "ADMIN_API_KEY)")
		}
		return nil
	},
}

func client() *adminClient {
	return newAdminClient(adminOpts.Addr, adminOpts.Prefix, adminOpts.APIKey)
}

// printJSON imprime indentado en el stdout del comando.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// call GET/POST/... y muestra el resultado.
func call(cmd *cobra.Command, method, path string, q url.Values, body any) error {
	var out any
	if err := client().do(cmd.Context(), method, path, q, body, &out); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return printJSON(cmd, out)
}

var (
	listStatus string
	listLimit  int
	listOffset int
	createAttr map[string]string
	createPwd  string
	issueTTL   int64
)

func init() {
	adminCmd.PersistentFlags().StringVar(&adminOpts.Addr, "addr", "http://127.0.0.1:8081", "Admin surface base URL")
	adminCmd.PersistentFlags().StringVar(&adminOpts.Prefix, "prefix", "", "Admin route prefix")
	adminCmd.PersistentFlags().StringVar(&adminOpts.APIKey, "api-key", "", "Admin API key")

	// ─── identities ───

	identitiesCmd := &cobra.Command{Use: "identities", Short: "Manage identities"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if listStatus != "" {
				q.Set("status", listStatus)
			}
			q.Set("limit", strconv.Itoa(listLimit))
			q.Set("offset", strconv.Itoa(listOffset))
			return call(cmd, http.MethodGet, "/identities", q, nil)
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (active|disabled|deleted)")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Page size")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Page offset")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/identities", nil, map[string]any{
				"attributes": createAttr,
				"password":   createPwd,
			})
		},
	}
	createCmd.Flags().StringToStringVar(&createAttr, "attr", nil, "Attribute key=value (repeatable)")
	createCmd.Flags().StringVar(&createPwd, "password", "", "Initial password (optional)")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/identities/"+url.PathEscape(args[0]), nil, nil)
		},
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup <natural-key>",
		Short: "Find an identity by natural key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/identities/lookup", url.Values{"key": {args[0]}}, nil)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "set-status <id> <active|disabled|deleted>",
		Short: "Change identity status (disabled/deleted revoke every session)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPut, "/identities/"+url.PathEscape(args[0])+"/status", nil,
				map[string]string{"status": args[1]})
		},
	}

	identitiesCmd.AddCommand(listCmd, createCmd, getCmd, lookupCmd, statusCmd)

	// ─── sessions ───

	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Manage sessions"}

	sessListCmd := &cobra.Command{
		Use:   "list <identity-id>",
		Short: "List sessions of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/identities/"+url.PathEscape(args[0])+"/sessions", nil, nil)
		},
	}

	issueCmd := &cobra.Command{
		Use:   "issue <identity-id>",
		Short: "Issue a session token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/identities/"+url.PathEscape(args[0])+"/sessions", nil,
				map[string]int64{"ttl_seconds": issueTTL})
		},
	}
	issueCmd.Flags().Int64Var(&issueTTL, "ttl", 0, "TTL in seconds (0 = default)")

	revokeCmd := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Revoke one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().do(cmd.Context(), http.MethodDelete, "/sessions/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}

	revokeAllCmd := &cobra.Command{
		Use:   "revoke-all <identity-id>",
		Short: "Revoke every session of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/identities/"+url.PathEscape(args[0])+"/revoke-all", nil, nil)
		},
	}

	sessionsCmd.AddCommand(sessListCmd, issueCmd, revokeCmd, revokeAllCmd)

	// ─── keys ───

	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "List signing keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/keys", nil, nil)
		},
	}
	rotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the active signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/keys/rotate", nil, nil)
		},
	}
	keysCmd.AddCommand(rotateCmd)

	adminCmd.AddCommand(identitiesCmd, sessionsCmd, keysCmd)
}
