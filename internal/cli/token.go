package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"timed-quiz-service/internal/auth"
	"timed-quiz-service/internal/config"
)

// NewTokenCmd mints a bearer token accepted by the local identity endpoint.
func NewTokenCmd(configPath *string) *cobra.Command {
	var fname, lname, email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth secret not configured (set auth.secret or AUTH_SECRET)")
			}
			tokens := auth.NewTokens(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			token, err := tokens.Issue(fname, lname, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&fname, "fname", "", "first name")
	cmd.Flags().StringVar(&lname, "lname", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
