package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authsync"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mount a reconciler and print every state it commits",
		Long: "watch subscribes to the device's session feed, runs the initial " +
			"reconciliation and prints one JSON line per committed state until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			r, err := b.reconciler(cfg, b.client(cfg.Session.Device, token))
			if err != nil {
				return err
			}
			defer r.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			cancel := r.Watch(func(s authsync.State) {
				if err := enc.Encode(viewOf(s)); err != nil {
					logger.Error("write state", "error", err)
				}
			})
			defer cancel()

			m, err := r.Mount(ctx)
			if err != nil {
				return fmt.Errorf("mount: %w", err)
			}
			logger.Info("watching", "device", cfg.Session.Device, "mount_id", m.ID())

			<-ctx.Done()
			return m.Unmount()
		},
	}
	cmd.Flags().StringVar(&token, "token", defaultToken(), "Session token the device starts with (or AUTHSYNC_TOKEN env)")
	return cmd
}
