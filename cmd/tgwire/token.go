package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/prilive-com/tgwire/internal/validate"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bot token stored in the OS keychain",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store the bot token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Token(args[0]); err != nil {
				return err
			}
			if err := keyring.Set(keyringService, keyringAccount, args[0]); err != nil {
				return fmt.Errorf("write keychain: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token stored")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored bot token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := keyring.Delete(keyringService, keyringAccount); err != nil {
				return fmt.Errorf("delete keychain entry: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token deleted")
			return nil
		},
	})

	return cmd
}
