package users

import (
	"bufio"
	"errors"
	"fmt"
	"net/mail"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/terraconstructs/gridauth/cmd/cmdutil"
	"github.com/terraconstructs/gridauth/internal/provider"
	"github.com/terraconstructs/gridauth/internal/repository"
)

var (
	emailFlag    string
	nameFlag     string
	passwordFlag string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a password user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if _, err := mail.ParseAddress(emailFlag); err != nil {
			return fmt.Errorf("invalid email format: %w", err)
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		cfg, logger, err := cmdutil.LoadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, err := cmdutil.OpenDB(ctx, cfg)
		if err != nil {
			return err
		}
		users := repository.NewBunUserRepository(db)
		defer func() { _ = db.Close() }()

		existing, err := users.GetByEmail(ctx, emailFlag)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check email uniqueness: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("user with email %q already exists", emailFlag)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), provider.PasswordCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		p := provider.NewDatabaseProvider(users, logger)
		user, err := p.Create(ctx, emailFlag, nameFlag, string(hash))
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "User created successfully!")
		fmt.Fprintln(out, "----------------------------------------")
		fmt.Fprintf(out, "User ID: %s\n", user.GetID())
		fmt.Fprintf(out, "Email: %s\n", user.Email())
		fmt.Fprintf(out, "Name: %s\n", user.Name())
		fmt.Fprintln(out, "----------------------------------------")
		return nil
	},
}
