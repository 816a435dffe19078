package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"catalogsync/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and remote endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color := shouldColorize(out)
			failed := 0
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				status := colorize(color, ansiGreen, "ok  ")
				if !result.Passed {
					status = colorize(color, ansiRed, "FAIL")
					failed++
				}
				fmt.Fprintf(out, "%s %-16s %s\n", status, result.Name, result.Detail)
			}
			if failed > 0 {
				return errors.New(pluralize(failed, "check failed", "checks failed"))
			}
			return nil
		},
	}
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
