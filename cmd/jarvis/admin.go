package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/jarvis/internal/jarvis/app"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.New(c.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := db.SchemaVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", c.cfg.DatabasePath, v)
			return nil
		},
	}
}

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage Jarvis accounts",
	}

	var email, name, matrixID string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account and print its API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.New(c.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			u, err := db.CreateUser(ctx, email, name, matrixID)
			if err != nil {
				return err
			}
			token, err := db.IssueToken(ctx, u.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\ntoken: %s\n", u.ID, u.Email, token)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "account email (required)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&matrixID, "matrix-id", "", "Matrix ID to link, e.g. @alice:example.com")
	_ = add.MarkFlagRequired("email")

	var tokenEmail string
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue an additional API token for an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.New(c.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			u, err := db.UserByEmail(ctx, tokenEmail)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no user with email %q", tokenEmail)
			}
			if err != nil {
				return err
			}
			t, err := db.IssueToken(ctx, u.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token: %s\n", t)
			return nil
		},
	}
	token.Flags().StringVar(&tokenEmail, "email", "", "account email (required)")
	_ = token.MarkFlagRequired("email")

	cmd.AddCommand(add, token)
	return cmd
}

func (c *cli) askCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one chat message as a user and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(c.cfg)
			if err != nil {
				return err
			}
			defer a.Stop()

			ctx := cmd.Context()
			u, err := a.Store().UserByEmail(ctx, email)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no user with email %q", email)
			}
			if err != nil {
				return err
			}
			out := a.Dispatcher().Dispatch(ctx, u.ID, strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "user", "", "email of the account to act as (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) translateCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate English text through the inference service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw := gateway.New(c.cfg.Gateway())
			res := gw.Translate(cmd.Context(), strings.Join(args, " "), lang)
			fmt.Fprintln(cmd.OutOrStdout(), res.Reply())
			if !res.OK() {
				return fmt.Errorf("translation %s", res.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", gateway.DefaultLanguage, "target language code")
	return cmd
}
