package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool
	var mintFlag bool

	ctx := newCommandContext(&configFlag, &jsonFlag, &mintFlag)

	rootCmd := &cobra.Command{
		Use:           "openshelf",
		Short:         "Book marketplace with chapter sales, staking and access tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVar(&mintFlag, "mint", false, "Enable the in-process access token minter")

	rootCmd.AddCommand(newBookCommand(ctx))
	rootCmd.AddCommand(newChapterCommand(ctx))
	rootCmd.AddCommand(newBuyCommand(ctx))
	rootCmd.AddCommand(newStakeCommand(ctx))
	rootCmd.AddCommand(newClaimCommand(ctx))
	rootCmd.AddCommand(newReadCommand(ctx))
	rootCmd.AddCommand(newReceiptsCommand(ctx))
	rootCmd.AddCommand(newAccountCommand(ctx))
	rootCmd.AddCommand(newCollectionCommand(ctx))
	rootCmd.AddCommand(newMintCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
