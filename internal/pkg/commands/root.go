// Package commands implements jobboardctl, the operator CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/talentbridge/jobboard/internal/pkg/ats"
)

// Credentials issues and revokes ATS key triples.
type Credentials interface {
	IssueCredential(accountID uint, label string) (*ats.IssuedCredential, error)
	RevokeCredential(apiKey string) error
}

// Opener connects to the backing services. Commands call it lazily so help
// output works without a database.
type Opener func() (Credentials, error)

func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobboardctl",
		Short:         "Operator tools for the job board",
		Long:          "jobboardctl manages ATS API credentials against the job board database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAPIKeyCmd(open))
	return root
}
