package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	openshelf "github.com/xraph/openshelf"
	"github.com/xraph/openshelf/book"
)

func newBookCommand(ctx *commandContext) *cobra.Command {
	bookCmd := &cobra.Command{
		Use:   "book",
		Short: "Publish and inspect books",
	}

	bookCmd.AddCommand(newBookCreateCommand(ctx))
	bookCmd.AddCommand(newBookShowCommand(ctx))
	bookCmd.AddCommand(newBookListCommand(ctx))

	return bookCmd
}

func newBookCreateCommand(ctx *commandContext) *cobra.Command {
	var in openshelf.CreateBookInput
	var chapterSpecs []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a book",
		Long: "Publish a book. Chapters are given as index:price:name:url, for example\n" +
			"  --chapter 0:100:Prologue:https://cdn.example/0",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, spec := range chapterSpecs {
				ch, err := parseChapterSpec(spec)
				if err != nil {
					return err
				}
				in.Chapters = append(in.Chapters, ch)
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				b, err := s.CreateBook(c, in)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() string { return renderBook(b) })
			})
		},
	}

	cmd.Flags().StringVar(&in.Author, "author", "", "Author account")
	cmd.Flags().StringVar(&in.Title, "title", "", "Book title")
	cmd.Flags().StringVar(&in.Description, "description", "", "Book description")
	cmd.Flags().StringVar(&in.Genre, "genre", "", "Genre")
	cmd.Flags().StringVar(&in.ImageURL, "image", "", "Cover image URL")
	cmd.Flags().Int64Var(&in.FullBookPrice, "price", 0, "Full book price (fixed pricing only)")
	cmd.Flags().StringArrayVar(&chapterSpecs, "chapter", nil, "Chapter as index:price:name:url (repeatable)")
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newBookShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show a book with its chapters and stakes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				b, err := s.GetBook(c, bookID)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() string {
					var sb strings.Builder
					sb.WriteString(renderBook(b))
					if len(b.Chapters) > 0 {
						sb.WriteString("\n")
						sb.WriteString(renderChapters(b.Chapters))
					}
					if len(b.Stakes) > 0 {
						sb.WriteString("\n")
						sb.WriteString(renderStakes(b.Stakes))
					}
					return sb.String()
				})
			})
		},
	}
}

func newBookListCommand(ctx *commandContext) *cobra.Command {
	var opts book.ListOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				books, err := s.ListBooks(c, opts)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, books, func() string {
					rows := make([][]string, 0, len(books))
					for _, b := range books {
						rows = append(rows, []string{
							b.ID.String(),
							b.Title,
							b.Author,
							b.Genre,
							strconv.Itoa(len(b.Chapters)),
							itoa(b.FullBookPrice),
							strconv.Itoa(len(b.Stakes)),
						})
					}
					return renderTable(
						[]string{"ID", "Title", "Author", "Genre", "Chapters", "Price", "Stakers"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
					)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Author, "author", "", "Only books by this author")
	cmd.Flags().StringVar(&opts.Genre, "genre", "", "Only books in this genre")
	cmd.Flags().IntVar(&opts.MinStakers, "min-stakers", 0, "Only books with at least this many stakers")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of books")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of books to skip")
	return cmd
}

func newChapterCommand(ctx *commandContext) *cobra.Command {
	chapterCmd := &cobra.Command{
		Use:   "chapter",
		Short: "Manage chapters",
	}

	var in openshelf.AddChapterInput
	addCmd := &cobra.Command{
		Use:   "add <book-id>",
		Short: "Register a chapter on a book you authored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			in.BookID = bookID
			return ctx.withShelf(cmd, func(c context.Context, s *openshelf.Shelf) error {
				b, err := s.AddChapter(c, in)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() string { return renderChapters(b.Chapters) })
			})
		},
	}
	addCmd.Flags().StringVar(&in.Author, "author", "", "Author account")
	addCmd.Flags().IntVar(&in.Index, "index", 0, "Chapter index")
	addCmd.Flags().StringVar(&in.Name, "name", "", "Chapter name")
	addCmd.Flags().StringVar(&in.URL, "url", "", "Chapter content URL")
	addCmd.Flags().Int64Var(&in.Price, "price", 0, "Chapter price")
	_ = addCmd.MarkFlagRequired("author")
	_ = addCmd.MarkFlagRequired("index")

	chapterCmd.AddCommand(addCmd)
	return chapterCmd
}

func parseChapterSpec(spec string) (openshelf.ChapterInput, error) {
	parts := strings.SplitN(spec, ":", 4)
	if len(parts) != 4 {
		return openshelf.ChapterInput{}, fmt.Errorf("chapter %q: want index:price:name:url", spec)
	}
	index, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return openshelf.ChapterInput{}, fmt.Errorf("chapter %q: index: %w", spec, err)
	}
	price, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return openshelf.ChapterInput{}, fmt.Errorf("chapter %q: price: %w", spec, err)
	}
	return openshelf.ChapterInput{
		Index: index,
		Price: price,
		Name:  strings.TrimSpace(parts[2]),
		URL:   strings.TrimSpace(parts[3]),
	}, nil
}

func renderBook(b *book.Book) string {
	return renderFields([][2]string{
		{"ID", b.ID.String()},
		{"Title", b.Title},
		{"Author", b.Author},
		{"Genre", b.Genre},
		{"Full price", itoa(b.FullBookPrice)},
		{"Total stake", itoa(b.TotalStake)},
		{"Chapters", strconv.Itoa(len(b.Chapters))},
		{"Readers", strconv.Itoa(len(b.Readers))},
	})
}

func renderChapters(chapters []book.Chapter) string {
	rows := make([][]string, 0, len(chapters))
	for _, ch := range chapters {
		rows = append(rows, []string{
			strconv.Itoa(ch.Index),
			ch.Name,
			itoa(ch.Price),
			strconv.Itoa(len(ch.Readers)),
			ch.URL,
		})
	}
	return renderTable(
		[]string{"Index", "Name", "Price", "Readers", "URL"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func renderStakes(stakes []book.Stake) string {
	rows := make([][]string, 0, len(stakes))
	for _, st := range stakes {
		rows = append(rows, []string{st.Staker, itoa(st.Amount), itoa(st.Earnings), itoa(st.Claimed)})
	}
	return renderTable(
		[]string{"Staker", "Amount", "Unclaimed", "Claimed"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)
}
