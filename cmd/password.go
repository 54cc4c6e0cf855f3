// SPDX-License-Identifier: GPL-3.0-or-later
package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var passwordCmd = &cobra.Command{
	Use:   "set-password <account id>",
	Short: "Store the imap password of an account in the keyring, read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", args[0])
		password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && len(password) == 0 {
			return fmt.Errorf("could not read password: %w", err)
		}
		password = strings.TrimRight(password, "\r\n")
		if len(password) == 0 {
			return fmt.Errorf("password must not be empty")
		}

		ring, err := openKeyring()
		if err != nil {
			return err
		}
		return ring.SetPassword(args[0], password)
	},
}
