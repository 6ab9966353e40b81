package tokens

import "github.com/spf13/cobra"

// TokensCmd is the parent command for API token operations
var TokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage API tokens",
	Long:  `Commands for issuing and listing API tokens directly against the database.`,
}

var (
	emailFlag string
	typeFlag  string
	envFlag   string
	nameFlag  string
)

func init() {
	generateCmd.Flags().StringVar(&emailFlag, "email", "", "Email of the user the token is issued to")
	generateCmd.Flags().StringVar(&typeFlag, "type", "", "Token type prefix (default: auth.token_type)")
	generateCmd.Flags().StringVar(&envFlag, "environment", "", "Token environment (default: auth.environment)")
	generateCmd.Flags().StringVar(&nameFlag, "name", "", "Label shown in token listings")

	listCmd.Flags().StringVar(&emailFlag, "email", "", "Email of the user whose tokens are listed")

	TokensCmd.AddCommand(generateCmd, listCmd)
}
