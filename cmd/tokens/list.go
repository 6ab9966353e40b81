package tokens

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/gridauth/cmd/cmdutil"
	"github.com/terraconstructs/gridauth/internal/auth"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's API tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}

		cfg, logger, err := cmdutil.LoadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		bundle, err := cmdutil.NewAppBundle(ctx, cfg, logger, cmdutil.AppOptions{})
		if err != nil {
			return err
		}
		defer bundle.Close()

		user, err := bundle.Provider.FindByUID(ctx, emailFlag)
		if errors.Is(err, auth.ErrUserNotFound) {
			return fmt.Errorf("no user with email %q", emailFlag)
		}
		if err != nil {
			return fmt.Errorf("failed to look up user: %w", err)
		}

		records, err := bundle.APIToken.ListTokensForUser(ctx, user)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tENV\tCREATED\tLAST USED")
		for _, r := range records {
			lastUsed := "never"
			if r.LastUsedAt != nil {
				lastUsed = r.LastUsedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Name, r.Type, r.Environment, r.CreatedAt.Format(time.RFC3339), lastUsed)
		}
		return w.Flush()
	},
}
