package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/httpapi"
	"github.com/bft-labs/dcaledger/pkg/dcaledger"
)

// connect loads the configuration and returns an API client together with
// the ledger's info, which carries the decimals used for amounts.
func connect(c *cli, cmd *cobra.Command) (*httpapi.Client, dcaledger.Info, error) {
	if err := c.load(cmd); err != nil {
		return nil, dcaledger.Info{}, err
	}
	client := httpapi.NewClient(c.cfg.ServerURL, &http.Client{Timeout: c.cfg.HTTPTimeout})
	info, err := client.Info(ctxOf(cmd))
	if err != nil {
		return nil, dcaledger.Info{}, fmt.Errorf("connect to %s: %w", c.cfg.ServerURL, err)
	}
	return client, info, nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid allocation id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newEnterCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "enter <owner> <amount> <executions>",
		Short: "Create an allocation selling amount at each of the next executions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, info, err := connect(c, cmd)
			if err != nil {
				return err
			}
			amount, err := domain.ParseUnits(args[1], info.Decimals)
			if err != nil {
				return err
			}
			n, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid executions %q", args[2])
			}

			ev, err := client.Enter(ctxOf(cmd), httpapi.EnterRequest{
				Owner:      domain.Address(args[0]),
				Amount:     amount,
				Executions: n,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allocation %d entered: %s %s x%d (seq %d..%d)\n",
				ev.ID, ev.Amount.FormatUnits(info.Decimals), info.SellSymbol, n, ev.StartSeq, ev.EndSeq)
			return nil
		},
	}
}

func newExecuteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "execute",
		Short: "Run this period's execution now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, info, err := connect(c, cmd)
			if err != nil {
				return err
			}
			ev, err := client.Execute(ctxOf(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "execution %d (period %d): sold %s %s, bought %s %s at %s\n",
				ev.Seq, ev.Period,
				ev.Sold.FormatUnits(info.Decimals), info.SellSymbol,
				ev.Bought.FormatUnits(info.Decimals), info.BuySymbol,
				ev.Price.FormatUnits(domain.PriceDecimals))
			return nil
		},
	}
}

func newExitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "exit <owner> <id>",
		Short: "Retire an allocation and pay out its balances",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, info, err := connect(c, cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			ev, err := client.Exit(ctxOf(cmd), httpapi.ExitRequest{Caller: domain.Address(args[0]), ID: id})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allocation %d exited after %d executions: refunded %s %s, credited %s %s\n",
				ev.ID, ev.ExecutionsConsumed,
				ev.Refunded.FormatUnits(info.Decimals), info.SellSymbol,
				ev.Credited.FormatUnits(info.Decimals), info.BuySymbol)
			return nil
		},
	}
}

func newAllocationCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "allocation <id>",
		Short: "Show an allocation and its balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, info, err := connect(c, cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			resp, err := client.Allocation(ctxOf(cmd), id)
			if err != nil {
				return err
			}
			a := resp.Allocation
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "allocation %d\n", a.ID)
			fmt.Fprintf(out, "  owner:      %s\n", a.Owner)
			fmt.Fprintf(out, "  amount:     %s %s per execution\n", a.Amount.FormatUnits(info.Decimals), info.SellSymbol)
			fmt.Fprintf(out, "  executions: %d..%d (%d done)\n", a.StartSeq, a.EndSeq, a.Consumed(info.LastSeq))
			fmt.Fprintf(out, "  bought:     %s %s\n", resp.Bought.FormatUnits(info.Decimals), info.BuySymbol)
			fmt.Fprintf(out, "  unsold:     %s %s\n", resp.Unsold.FormatUnits(info.Decimals), info.SellSymbol)
			return nil
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the ledger state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, info, err := connect(c, cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func newMintCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <symbol> <to> <amount>",
		Short: "Mint sandbox tokens to an address",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, info, err := connect(c, cmd)
			if err != nil {
				return err
			}
			amount, err := domain.ParseUnits(args[2], info.Decimals)
			if err != nil {
				return err
			}
			h, err := client.Mint(ctxOf(cmd), httpapi.MintRequest{
				Symbol: args[0],
				To:     domain.Address(args[1]),
				Amount: amount,
			})
			if err != nil {
				return err
			}
			printHoldings(cmd.OutOrStdout(), info, h)
			return nil
		},
	}
}

func newHoldingsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "holdings <owner>",
		Short: "Show an address's token balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, info, err := connect(c, cmd)
			if err != nil {
				return err
			}
			h, err := client.Holdings(ctxOf(cmd), domain.Address(args[0]))
			if err != nil {
				return err
			}
			printHoldings(cmd.OutOrStdout(), info, h)
			return nil
		},
	}
}

func printHoldings(w io.Writer, info dcaledger.Info, h dcaledger.Holdings) {
	fmt.Fprintf(w, "%s: %s %s, %s %s\n", h.Owner,
		h.Sell.FormatUnits(info.Decimals), info.SellSymbol,
		h.Buy.FormatUnits(info.Decimals), info.BuySymbol)
}

func newEventsCmd(c *cli) *cobra.Command {
	var after int64
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Page through the event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := connect(c, cmd)
			if err != nil {
				return err
			}
			resp, err := client.Events(ctxOf(cmd), after, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range resp.Events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			if len(resp.Events) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "next cursor: %d\n", resp.Next)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "return events after this cursor")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}
