package tokens

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/gridauth/cmd/cmdutil"
	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/services/iam"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Issue an API token for a user",
	Long: `Issues a new API token for an existing user. The token is printed once and cannot be
recovered later; only its hash is stored.`,
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

		var opts []iam.GenerateOption
		if typeFlag != "" {
			opts = append(opts, iam.WithTokenType(typeFlag))
		}
		if envFlag != "" {
			opts = append(opts, iam.WithEnvironment(envFlag))
		}
		if nameFlag != "" {
			opts = append(opts, iam.WithName(nameFlag))
		}
		opts = append(opts, iam.WithMetadata(map[string]string{"issued_by": "cli"}))

		token, err := bundle.APIToken.Generate(ctx, user, opts...)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Token issued. Store it now; it will not be shown again.")
		fmt.Fprintln(out, "----------------------------------------")
		fmt.Fprintln(out, token.Token)
		fmt.Fprintln(out, "----------------------------------------")
		return nil
	},
}
