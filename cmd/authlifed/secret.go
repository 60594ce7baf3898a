package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authlife/secret"
)

func newSecretCommand(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Signing secret utilities",
	}

	var quiet bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Print a fresh signing secret suitable for JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := secret.Generate()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if quiet {
				fmt.Fprintln(out, s)
				return nil
			}
			fmt.Fprintf(out, "JWT_SECRET=%s\n", s)
			fmt.Fprintf(out, "# fingerprint %s\n", secret.Fingerprint(s))
			return nil
		},
	}
	generate.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the secret")

	cmd.AddCommand(generate)
	return cmd
}
