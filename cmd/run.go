// SPDX-License-Identifier: GPL-3.0-or-later
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CrawX/go-imap-triage/classifier"
	"github.com/CrawX/go-imap-triage/classifier/openai"
	"github.com/CrawX/go-imap-triage/classifier/rspamd"
	"github.com/CrawX/go-imap-triage/classifier/spamassassin"
	"github.com/CrawX/go-imap-triage/config"
	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/imapconnection"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mailbox"
	"github.com/CrawX/go-imap-triage/notification"
	"github.com/CrawX/go-imap-triage/persistence"
	"github.com/CrawX/go-imap-triage/pipeline"
	"github.com/CrawX/go-imap-triage/supervisor"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const ShutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backfill and watch every configured account until interrupted (default)",
	Args:  cobra.NoArgs,
	Run:   runTriage,
}

func runTriage(cmd *cobra.Command, _ []string) {
	log.InitLogging("debug")
	logger := log.Logger(log.LOG_MAIN)

	conf := loadConfig(logger)
	accounts := conf.DomainAccounts()
	if len(accounts) == 0 {
		logger.Fatal("No usable account, every account lacks a password")
	}

	p, err := persistence.NewPersistence(conf.Database)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not connect to database")
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	categorizer := newCategorizer(ctx, conf, logger)
	fanout := newFanout(conf, logger)

	var notifier domain.Notifier
	if fanout.Sinks() > 0 {
		notifier = fanout
	} else {
		logger.Warn("No notification sinks configured")
	}

	pl, err := pipeline.NewPipeline(categorizer, p, notifier,
		pipeline.NotifyOn(domain.Category(conf.NotifyOn)),
		pipeline.NotifyConcurrency(conf.NotifyConcurrency),
	)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start pipeline")
	}

	supervisorConfigs := []supervisor.ConfigFunc{}
	if conf.DryRun {
		supervisorConfigs = append(supervisorConfigs, supervisor.DryRun())
	}
	if len(conf.SpamFolder) > 0 {
		supervisorConfigs = append(supervisorConfigs, supervisor.MoveSpam(conf.SpamFolder))
	}

	connections := supervisor.MailboxConnections(imapconnection.NewDialer(), mailboxConfigs(conf, logger)...)
	s, err := supervisor.NewSupervisor(pl, connections, supervisorConfigs...)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start supervisor")
	}

	logger.WithFields(logrus.Fields{"accounts": len(accounts), "folder": conf.Folder, "dryrun": conf.DryRun, "spamfolder": conf.SpamFolder}).Info("Starting triage")
	if conf.DryRun && len(conf.SpamFolder) > 0 {
		logger.Warn("Skipping spam moves due to dry-run")
	}

	err = s.InitializeAll(ctx, accounts)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not initialize accounts")
	}
	defer shutdown(s, pl, p, logger)

	<-ctx.Done()
	logger.Info("Shutting down")
}

// shutdown tears down every account and logs the session summary.
func shutdown(s *supervisor.Supervisor, pl *pipeline.Pipeline, p *persistence.Persistence, logger *logrus.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := s.ShutdownAll(shutdownCtx)
	if err != nil {
		logger.WithField("error", err).Error("Shutdown was not clean")
	}

	stats := pl.Stats()
	logger.WithFields(logrus.Fields{
		"processed":       stats.Processed,
		"persisted":       stats.Persisted,
		"persistFailures": stats.PersistFailures,
		"notified":        stats.Notified,
		"notifyFailures":  stats.NotifyFailures,
	}).Info("Session summary")

	counts, err := p.CountByCategory(context.Background())
	if err != nil {
		logger.WithField("error", err).Warn("Could not count stored mails")
		return
	}
	fields := logrus.Fields{}
	for category, count := range counts {
		fields[string(category)] = count
	}
	logger.WithFields(fields).Info("Stored mails by category")
}

func mailboxConfigs(conf *config.Config, logger *logrus.Logger) []mailbox.ConfigFunc {
	return []mailbox.ConfigFunc{
		mailbox.Folder(conf.Folder),
		mailbox.PollInterval(conf.PollInterval.Duration),
		mailbox.ReconnectDelay(conf.ReconnectDelay.Duration),
		mailbox.MaxReconnectAttempts(conf.MaxReconnectAttempts),
		mailbox.MaxFetchFailures(conf.MaxFetchFailures),
		mailbox.ResyncOnReconnect(conf.ResyncOnReconnect),
		mailbox.Since(time.Now().AddDate(0, 0, -conf.LookbackDays)),
		mailbox.ObserveState(func(accountID string, from, to domain.ConnectionState) {
			logger.WithFields(logrus.Fields{"account": accountID, "from": from, "to": to}).Debug("Connection state changed")
		}),
	}
}

// newCategorizer builds the classifier chain: optional spam checker in front of the model,
// wrapped by the orchestrator.
func newCategorizer(ctx context.Context, conf *config.Config, logger *logrus.Logger) *classifier.Orchestrator {
	model, err := openai.NewClassifier(conf.OpenAIKey, conf.OpenAIModel, conf.OpenAIBaseURL)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start model classifier")
	}

	var base domain.Classifier = model
	var checker domain.SpamChecker
	if len(conf.SpamassassinHost) > 0 {
		checker, err = spamassassin.NewSpamAssassin(ctx, conf.SpamassassinHost)
		if err != nil {
			logger.WithField("error", err).Fatal("Could not start spamassassin connector")
		}
		logger.WithField("host", conf.SpamassassinHost).Info("Checking mails with spamassassin first")
	} else if len(conf.RspamdController) > 0 {
		checker, err = rspamd.NewRspamd(ctx, conf.RspamdController, conf.RspamdPassword)
		if err != nil {
			logger.WithField("error", err).Fatal("Could not start rspamd connector")
		}
		logger.WithField("host", conf.RspamdController).Info("Checking mails with rspamd first")
	}
	if checker != nil {
		base = classifier.NewSpamGate(checker, model)
	}

	orchestrator, err := classifier.NewOrchestrator(base,
		classifier.ChunkSize(conf.ChunkSize),
		classifier.ChunkDelay(conf.ChunkDelay.Duration),
	)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start classifier")
	}
	return orchestrator
}

func newFanout(conf *config.Config, logger *logrus.Logger) *notification.Fanout {
	sinks := []notification.Sink{}
	if len(conf.WebhookURL) > 0 {
		sinks = append(sinks, notification.NewWebhook(conf.WebhookURL))
	}
	if len(conf.SlackWebhookURL) > 0 {
		sinks = append(sinks, notification.NewSlack(conf.SlackWebhookURL))
	}
	if len(conf.SendGridKey) > 0 {
		sg, err := notification.NewSendGrid(conf.SendGridKey, conf.SendGridFrom, conf.SendGridTo, conf.SendGridHost)
		if err != nil {
			logger.WithField("error", err).Fatal("Could not start SendGrid notifier")
		}
		sinks = append(sinks, sg)
	}

	return notification.NewFanout(sinks...)
}
