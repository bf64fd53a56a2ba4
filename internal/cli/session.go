package cli

import (
	"fmt"
	"time"

	"github.com/MrEthical07/authsync/session"
	"github.com/spf13/cobra"
)

func newSignInCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "signin <user_id>",
		Short: "Issue a session for a user and announce it to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			sess, token, err := b.issuer().Issue(cmd.Context(), cfg.Session.Device, args[0], email)
			if err != nil {
				return fmt.Errorf("issue session: %w", err)
			}
			logger.Debug("session issued", "session_id", sess.ID, "user_id", sess.UserID, "device", cfg.Session.Device)
			printSession(cmd, sess, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email recorded on the session")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <session_id>",
		Short: "Extend a session and announce the new token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			sess, token, err := b.issuer().Refresh(cmd.Context(), cfg.Session.Device, args[0])
			if err != nil {
				return fmt.Errorf("refresh session: %w", err)
			}
			printSession(cmd, sess, token)
			return nil
		},
	}
}

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout <session_id>",
		Short: "Revoke a session and announce the sign-out to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.issuer().Revoke(cmd.Context(), cfg.Session.Device, args[0]); err != nil {
				return fmt.Errorf("revoke session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s revoked\n", args[0])
			return nil
		},
	}
}

func printSession(cmd *cobra.Command, sess *session.Session, token string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", sess.ID)
	fmt.Fprintf(out, "  User:    %s\n", sess.UserID)
	if sess.Email != "" {
		fmt.Fprintf(out, "  Email:   %s\n", sess.Email)
	}
	fmt.Fprintf(out, "  Expires: %s\n", time.Unix(sess.ExpiresAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "  Token:   %s\n", token)
}
