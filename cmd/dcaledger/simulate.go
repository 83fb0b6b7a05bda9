package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dcaledger/internal/scenario"
	"github.com/bft-labs/dcaledger/pkg/log"
)

func newSimulateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Run scripted scenarios against an in-memory ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(c.cfg.LogLevel)
			if err != nil {
				return err
			}
			logger := log.NewZerologAdapterWithLogger(c.log.Level(level))

			var failed []string
			for _, path := range args {
				sc, err := scenario.Load(path)
				if err != nil {
					return err
				}
				res, err := scenario.Run(ctxOf(cmd), sc, logger)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, string(res.Bytes()))
				if !res.Pass {
					for _, e := range res.Errors {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", sc.Name, e)
					}
					failed = append(failed, sc.Name)
				}
				fmt.Fprintln(out)
			}
			if len(failed) > 0 {
				return fmt.Errorf("scenarios failed: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}
