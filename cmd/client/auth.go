package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atinyakov/GophSpend/internal/models"
)

func newRegisterCmd(e *env) *cobra.Command {
	return credentialsCmd(e, "register", "Create an account and keep its session",
		func(ctx context.Context, email, password string) (*models.Session, error) {
			return e.authClient().Register(ctx, email, password)
		})
}

func newLoginCmd(e *env) *cobra.Command {
	return credentialsCmd(e, "login", "Sign in and keep the session",
		func(ctx context.Context, email, password string) (*models.Session, error) {
			return e.authClient().Login(ctx, email, password)
		})
}

func credentialsCmd(
	e *env,
	use, short string,
	call func(ctx context.Context, email, password string) (*models.Session, error),
) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			session, err := call(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := e.tokens.Save(session); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (session valid until %s)\n",
				session.Email, session.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}
