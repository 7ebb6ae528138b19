package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"authgate/internal/provider"
	"authgate/pkg/backend"
)

func probeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print the identity provider the backend reports",
		Long: `Probe calls the backend health endpoint once and prints the provider the
gateway would resolve. Unreachable backends resolve to local.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			be, err := backend.New(flags.backendURL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			resolved := provider.New(be, flags.logger()).Resolve(ctx)
			fmt.Fprintf(out, "provider: %s\n", resolved)

			if h, err := be.Health(ctx); err == nil && h.Version != "" {
				fmt.Fprintf(out, "backend version: %s\n", h.Version)
			}
			return nil
		},
	}
}
