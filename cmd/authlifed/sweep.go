package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired sessions once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), a, runtimeOptions{auditOut: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer rt.close()

			n, err := rt.engine.Sessions().CleanupExpiredSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
			return nil
		},
	}
}
