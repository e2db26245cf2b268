package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newAPIKeyCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage ATS API credentials",
	}
	cmd.AddCommand(newAPIKeyIssueCmd(open), newAPIKeyRevokeCmd(open))
	return cmd
}

func newAPIKeyIssueCmd(open Opener) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "issue [accountID]",
		Short: "Issue a new key triple for an account",
		Long:  "Issue a new account key, API key and secret for an account. The secret is printed once and cannot be recovered.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || accountID == 0 {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			creds, err := open()
			if err != nil {
				return err
			}
			issued, err := creds.IssueCredential(uint(accountID), label)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "X-Account-Key: %s\n", issued.AccountKey)
			fmt.Fprintf(out, "X-API-Key:     %s\n", issued.APIKey)
			fmt.Fprintf(out, "X-Secret-Key:  %s\n", issued.SecretKey)
			fmt.Fprintln(out, "Store the secret now. It is not shown again.")
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "free-form name of the integration")
	return cmd
}

func newAPIKeyRevokeCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [apiKey]",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := open()
			if err != nil {
				return err
			}
			if err := creds.RevokeCredential(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
			return nil
		},
	}
}
