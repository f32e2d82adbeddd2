package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"creatorguard/internal/bootstrap"
	"creatorguard/internal/errs"
	"creatorguard/internal/transport/httpapi"
	"creatorguard/internal/usecase/moderation"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin API bearer token signed with auth.jwt_secret",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *moderation.Service) error {
		userID, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if app.Config.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not configured")
		}
		token, err := httpapi.IssueAdminToken(app.Config.Auth.JWTSecret, userID, role, ttl)
		if err != nil {
			return errs.Wrap(err, "issue admin token")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), token); err != nil {
			return errs.Wrap(err, "write token")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("user", "", "Subject user id")
	tokenCmd.Flags().String("role", "moderator", "Role claim")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
