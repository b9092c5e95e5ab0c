package main

import (
	"github.com/spf13/cobra"

	"github.com/antinvestor/releasegate/internal/policy"
)

func newPolicyCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective release policy",
		Long: `Prints the release policy after the optional YAML file and the RISK_*
environment overrides are applied. Exits non-zero if the result is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pol, err := policy.Resolve(path)
			if err != nil {
				return err
			}
			out, err := pol.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&path, "policy", "", "release policy YAML file")
	return cmd
}
