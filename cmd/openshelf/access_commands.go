package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/accessgate"
)

func newCollectionCommand(ctx *commandContext) *cobra.Command {
	collectionCmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage access token collections",
	}

	collectionCmd.AddCommand(&cobra.Command{
		Use:   "create <owner>",
		Short: "Create the owner's token collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				col, err := s.CreateUserCollection(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, col, func() string {
					return fmt.Sprintf("Collection %s for %s", col.CollectionID, col.Owner)
				})
			})
		},
	})

	return collectionCmd
}

func newMintCommand(ctx *commandContext) *cobra.Command {
	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Issue access tokens for purchases",
	}

	var bookOwner string
	bookCmd := &cobra.Command{
		Use:   "book <book-id>",
		Short: "Mint or update the owner's token after a full-book purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				tok, err := s.MintBookToken(c, bookID, bookOwner)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, tok, func() string { return renderToken(tok) })
			})
		},
	}
	bookCmd.Flags().StringVar(&bookOwner, "owner", "", "Token owner")
	_ = bookCmd.MarkFlagRequired("owner")

	var chapterOwner string
	var index int
	chapterCmd := &cobra.Command{
		Use:   "chapter <book-id>",
		Short: "Mint or update the owner's token after a chapter purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				tok, err := s.MintChapterToken(c, bookID, chapterOwner, index)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, tok, func() string { return renderToken(tok) })
			})
		},
	}
	chapterCmd.Flags().StringVar(&chapterOwner, "owner", "", "Token owner")
	chapterCmd.Flags().IntVar(&index, "index", 0, "Chapter index")
	_ = chapterCmd.MarkFlagRequired("owner")
	_ = chapterCmd.MarkFlagRequired("index")

	retryCmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry every pending or failed token of past purchases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				n, err := s.RetryPendingMints(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, map[string]int{"issued": n}, func() string {
					return fmt.Sprintf("Issued %d access tokens", n)
				})
			})
		},
	}

	mintCmd.AddCommand(bookCmd)
	mintCmd.AddCommand(chapterCmd)
	mintCmd.AddCommand(retryCmd)
	return mintCmd
}

func renderToken(t *accessgate.Token) string {
	pairs := [][2]string{
		{"Book", t.BookID.String()},
		{"Owner", t.Owner},
		{"Asset", t.AssetID},
	}
	for _, k := range slices.Sorted(maps.Keys(t.Attributes)) {
		pairs = append(pairs, [2]string{"attr " + k, t.Attributes[k]})
	}
	return renderFields(pairs)
}
