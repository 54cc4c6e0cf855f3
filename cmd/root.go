// SPDX-License-Identifier: GPL-3.0-or-later
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/CrawX/go-imap-triage/config"
	"github.com/CrawX/go-imap-triage/credential"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/99designs/keyring"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
	keyringDir string
)

var rootCmd = &cobra.Command{
	Use:   "go-imap-triage",
	Short: "Watch imap mailboxes and sort every incoming mail into a sales category",
	Run:   runTriage,
}

func init() {
	defaultKeyringDir := "~/.config/go-imap-triage/credentials"
	home, err := os.UserHomeDir()
	if err == nil {
		defaultKeyringDir = filepath.Join(home, ".config", "go-imap-triage", "credentials")
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.toml", "path to the toml config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to a .env file with secrets, ignored if missing")
	rootCmd.PersistentFlags().StringVar(&keyringDir, "keyring-dir", defaultKeyringDir, "directory of the file keyring used when no system keyring is available")

	rootCmd.AddCommand(runCmd, recategorizeCmd, passwordCmd)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration, exiting on failure, and resolves keyring passwords.
// Accounts whose password cannot be resolved are logged and left out of DomainAccounts.
func loadConfig(logger *logrus.Logger) *config.Config {
	conf, err := config.ReadConfig(configFile, envFile)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not load config")
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}

	if conf.NeedsKeyring() {
		ring, err := openKeyring()
		if err != nil {
			logger.WithField("error", err).Error("Could not open keyring, skipping accounts with keyring passwords")
			return conf
		}
		err = conf.ResolvePasswords(ring.Password)
		if err != nil {
			logger.WithField("error", err).Error("Could not resolve account passwords, skipping those accounts")
		}
	}

	return conf
}

func openKeyring() (*credential.Keyring, error) {
	return credential.OpenKeyring(keyringDir, keyring.TerminalPrompt)
}
