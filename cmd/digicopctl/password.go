package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"digicop-backend/internal/services"
)

const minPasswordLength = 8

// newHashPasswordCmd prints a bcrypt hash for ADMIN_PASSWORD_HASH. The
// password is read from the first line of stdin so it stays out of shell
// history.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an admin password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("no password on stdin")
			}
			password := strings.TrimRight(line, "\r\n")
			if len(password) < minPasswordLength {
				return fmt.Errorf("password must be at least %d characters", minPasswordLength)
			}

			hash, err := services.HashPassword(password)
			if err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "%s\n", hash)
		},
	}
}
