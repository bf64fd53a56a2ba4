package cli

import (
	"fmt"

	"github.com/MrEthical07/authsync/profile"
	"github.com/spf13/cobra"
)

func newProvisionCmd() *cobra.Command {
	var (
		role   string
		name   string
		points int64
		award  int64
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "provision <user_id>",
		Short: "Create, update or delete the profile row for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			id := args[0]
			out := cmd.OutOrStdout()
			switch {
			case remove:
				if err := b.profiles.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete profile: %w", err)
				}
				fmt.Fprintf(out, "Profile %s deleted\n", id)
				return nil
			case award != 0:
				total, err := b.profiles.AddPoints(cmd.Context(), id, award)
				if err != nil {
					return fmt.Errorf("award points: %w", err)
				}
				fmt.Fprintf(out, "Profile %s now has %d points\n", id, total)
				return nil
			}

			r, err := profile.ParseRole(role)
			if err != nil {
				return err
			}
			p := &profile.Profile{ID: id, Role: r, DisplayName: name, Points: points}
			if err := b.profiles.Put(cmd.Context(), p); err != nil {
				return fmt.Errorf("write profile: %w", err)
			}

			fmt.Fprintf(out, "Profile: %s\n", id)
			fmt.Fprintf(out, "  Role:    %s\n", r)
			fmt.Fprintf(out, "  Landing: %s\n", r.Landing())
			fmt.Fprintf(out, "  Points:  %d\n", points)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(profile.RoleStudent), "Role: admin, teacher or student")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().Int64Var(&points, "points", 0, "Initial point balance")
	cmd.Flags().Int64Var(&award, "award", 0, "Add points to an existing row instead of writing it")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the row instead of writing it")
	return cmd
}
