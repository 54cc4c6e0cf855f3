// SPDX-License-Identifier: GPL-3.0-or-later
package cmd

import (
	"fmt"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/persistence"
	"github.com/CrawX/go-imap-triage/pipeline"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var recategorizeCmd = &cobra.Command{
	Use:   "recategorize <id>",
	Short: "Classify a stored mail again and update its category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log.InitLogging("info")
		logger := log.Logger(log.LOG_MAIN)

		conf := loadConfig(logger)

		p, err := persistence.NewPersistence(conf.Database)
		if err != nil {
			return fmt.Errorf("could not connect to database: %w", err)
		}
		defer p.Close()

		pl, err := pipeline.NewPipeline(newCategorizer(cmd.Context(), conf, logger), p, nil)
		if err != nil {
			return fmt.Errorf("could not start pipeline: %w", err)
		}

		msg, err := pl.Recategorize(cmd.Context(), args[0])
		if domain.IsNotFound(err) {
			return err
		}
		if err != nil {
			return fmt.Errorf("could not recategorize: %w", err)
		}

		logger.WithFields(logrus.Fields{"id": msg.ID, "category": msg.Category}).Info("Recategorized")
		fmt.Fprintln(cmd.OutOrStdout(), msg.Category)
		return nil
	},
}
