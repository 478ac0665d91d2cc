package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/account"
)

func newAccountCommand(ctx *commandContext) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Fund accounts and inspect balances",
	}

	accountCmd.AddCommand(newAccountFundCommand(ctx))
	accountCmd.AddCommand(newAccountBalanceCommand(ctx))
	accountCmd.AddCommand(newAccountHistoryCommand(ctx))

	return accountCmd
}

func newAccountFundCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fund <account> <amount>",
		Short: "Deposit funds into an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				t, err := s.Deposit(c, args[0], amount)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, t, func() string {
					return fmt.Sprintf("Deposited %d into %s (%s)", t.Amount, t.To, t.ID)
				})
			})
		},
	}
}

func newAccountBalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account balance and its journal totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				st, err := s.Statement(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, st, func() string {
					return renderFields([][2]string{
						{"Account", st.Account},
						{"Balance", fmt.Sprintf("%d (%s)", st.Balance.Amount, st.Balance.String())},
						{"Credits", moneyOrDash(st.Credits)},
						{"Debits", moneyOrDash(st.Debits)},
						{"Transfers", strconv.Itoa(st.Entries)},
						{"Reconciled", yesNo(st.Reconciled())},
					})
				})
			})
		},
	}
}

func newAccountHistoryCommand(ctx *commandContext) *cobra.Command {
	var opts account.ListOpts
	var bookArg string
	var kind string

	cmd := &cobra.Command{
		Use:   "history <account>",
		Short: "List transfers touching an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Account = args[0]
			opts.Kind = account.Kind(kind)
			if bookArg != "" {
				bookID, err := parseBookID(bookArg)
				if err != nil {
					return err
				}
				opts.BookID = bookID
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				transfers, err := s.Transfers(c, opts)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, transfers, func() string {
					rows := make([][]string, 0, len(transfers))
					for _, t := range transfers {
						rows = append(rows, []string{
							t.CreatedAt.Format("2006-01-02 15:04:05"),
							string(t.Kind),
							orDash(t.From),
							t.To,
							itoa(t.Amount),
							orDash(t.BookID.String()),
						})
					}
					return renderTable(
						[]string{"Time", "Kind", "From", "To", "Amount", "Book"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					)
				})
			})
		},
	}
	cmd.Flags().StringVar(&bookArg, "book", "", "Only transfers for this book")
	cmd.Flags().StringVar(&kind, "kind", "", "Only transfers of this kind")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of transfers")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of transfers to skip")
	return cmd
}

func moneyOrDash(m openshelf.Money) string {
	if m.IsZero() {
		return "-"
	}
	return m.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
