package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/book"
	"github.com/xraph/openshelf/purchase"
)

func newBuyCommand(ctx *commandContext) *cobra.Command {
	buyCmd := &cobra.Command{
		Use:   "buy",
		Short: "Purchase chapters or full books",
	}

	var chapterIn openshelf.PurchaseChapterInput
	chapterCmd := &cobra.Command{
		Use:   "chapter <book-id>",
		Short: "Purchase one chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			chapterIn.BookID = bookID
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				r, err := s.PurchaseChapter(c, chapterIn)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, r, func() string { return renderReceipt(r) })
			})
		},
	}
	chapterCmd.Flags().StringVar(&chapterIn.Buyer, "buyer", "", "Buyer account")
	chapterCmd.Flags().IntVar(&chapterIn.ChapterIndex, "index", 0, "Chapter index")
	chapterCmd.Flags().BoolVar(&chapterIn.NeedAccessToken, "token", false, "Request an access token")
	_ = chapterCmd.MarkFlagRequired("buyer")
	_ = chapterCmd.MarkFlagRequired("index")

	var bookIn openshelf.PurchaseBookInput
	fullCmd := &cobra.Command{
		Use:   "book <book-id>",
		Short: "Purchase every chapter of a book at its full price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			bookIn.BookID = bookID
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				r, err := s.PurchaseFullBook(c, bookIn)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, r, func() string { return renderReceipt(r) })
			})
		},
	}
	fullCmd.Flags().StringVar(&bookIn.Buyer, "buyer", "", "Buyer account")
	fullCmd.Flags().BoolVar(&bookIn.NeedAccessToken, "token", false, "Request an access token")
	_ = fullCmd.MarkFlagRequired("buyer")

	buyCmd.AddCommand(chapterCmd)
	buyCmd.AddCommand(fullCmd)
	return buyCmd
}

func newStakeCommand(ctx *commandContext) *cobra.Command {
	var in openshelf.StakeInput

	cmd := &cobra.Command{
		Use:   "stake <book-id>",
		Short: "Stake on a book to share in its future sales",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			in.BookID = bookID
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				st, err := s.StakeOnBook(c, in)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, st, func() string { return renderStakes([]book.Stake{*st}) })
			})
		},
	}
	cmd.Flags().StringVar(&in.Staker, "staker", "", "Staker account")
	cmd.Flags().Int64Var(&in.Amount, "amount", 0, "Amount to stake")
	_ = cmd.MarkFlagRequired("staker")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newClaimCommand(ctx *commandContext) *cobra.Command {
	var in openshelf.ClaimInput

	cmd := &cobra.Command{
		Use:   "claim <book-id>",
		Short: "Claim a staker's accrued earnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			in.BookID = bookID
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				amount, err := s.ClaimStakerEarnings(c, in)
				if err != nil {
					return err
				}
				result := map[string]any{"book_id": bookID.String(), "staker": in.Staker, "amount": amount}
				return ctx.emit(cmd, result, func() string {
					return fmt.Sprintf("Claimed %d for %s", amount, in.Staker)
				})
			})
		},
	}
	cmd.Flags().StringVar(&in.Staker, "staker", "", "Staker account")
	_ = cmd.MarkFlagRequired("staker")
	return cmd
}

func newReadCommand(ctx *commandContext) *cobra.Command {
	var reader string
	var index int

	cmd := &cobra.Command{
		Use:   "read <book-id>",
		Short: "Check whether a reader may read a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				ok, err := s.CanRead(c, bookID, reader, index)
				if err != nil {
					return err
				}
				result := map[string]any{"book_id": bookID.String(), "reader": reader, "chapter_index": index, "allowed": ok}
				return ctx.emit(cmd, result, func() string {
					return fmt.Sprintf("%s may read chapter %d: %s", reader, index, yesNo(ok))
				})
			})
		},
	}
	cmd.Flags().StringVar(&reader, "reader", "", "Reader account")
	cmd.Flags().IntVar(&index, "index", 0, "Chapter index")
	_ = cmd.MarkFlagRequired("reader")
	return cmd
}

func newReceiptsCommand(ctx *commandContext) *cobra.Command {
	var opts purchase.ListOpts
	var bookArg string

	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "List purchase receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bookArg != "" {
				bookID, err := parseBookID(bookArg)
				if err != nil {
					return err
				}
				opts.BookID = bookID
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				receipts, err := s.Receipts(c, opts)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, receipts, func() string { return renderReceipts(receipts) })
			})
		},
	}
	cmd.Flags().StringVar(&bookArg, "book", "", "Only receipts for this book")
	cmd.Flags().StringVar(&opts.Buyer, "buyer", "", "Only receipts of this buyer")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of receipts")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of receipts to skip")
	return cmd
}

func renderReceipt(r *purchase.Receipt) string {
	chapter := "-"
	if r.Mode == purchase.ModeChapter {
		chapter = strconv.Itoa(r.ChapterIndex)
	}
	return renderFields([][2]string{
		{"Receipt", r.ID.String()},
		{"Book", r.BookID.String()},
		{"Buyer", r.Buyer},
		{"Mode", string(r.Mode)},
		{"Chapter", chapter},
		{"Price", fmt.Sprintf("%d %s", r.Price, r.Currency)},
		{"Author share", itoa(r.Shares.Author)},
		{"Stake share", itoa(r.Shares.Stake)},
		{"Platform share", itoa(r.Shares.Platform)},
		{"Accrued to stakers", itoa(r.Accrued)},
		{"Full-book reader", yesNo(r.Promoted || r.Mode == purchase.ModeFullBook)},
		{"Access token", string(r.Access.Status)},
	})
}

func renderReceipts(receipts []*purchase.Receipt) string {
	rows := make([][]string, 0, len(receipts))
	for _, r := range receipts {
		chapter := "-"
		if r.Mode == purchase.ModeChapter {
			chapter = strconv.Itoa(r.ChapterIndex)
		}
		rows = append(rows, []string{
			r.ID.String(),
			r.BookID.String(),
			r.Buyer,
			string(r.Mode),
			chapter,
			itoa(r.Price),
			string(r.Access.Status),
		})
	}
	return renderTable(
		[]string{"Receipt", "Book", "Buyer", "Mode", "Chapter", "Price", "Token"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
