// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/CrawX/go-imap-triage/domain"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvSendGridKey    = "SENDGRID_API_KEY"
	EnvRspamdPassword = "RSPAMD_PASSWORD"
	// EnvImapPasswordPrefix is followed by the upper cased account id
	EnvImapPasswordPrefix = "IMAP_PASSWORD_"
)

// Duration is a time.Duration that decodes from strings like "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("could not parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

type Account struct {
	ID   string
	Name string

	Host     string
	User     string
	Password string
	// PasswordKeyring reads the password from the system keyring, stored under the account id
	PasswordKeyring bool

	// TLS defaults to true
	TLS      *bool
	Compress bool
}

type Config struct {
	Database string

	Accounts []Account

	Folder               string
	PollInterval         Duration
	ReconnectDelay       Duration
	MaxReconnectAttempts int
	MaxFetchFailures     int
	ResyncOnReconnect    bool
	LookbackDays         int

	DryRun     bool
	SpamFolder string

	SpamassassinHost string

	RspamdController string
	RspamdPassword   string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	ChunkSize  int
	ChunkDelay Duration

	NotifyOn          string
	NotifyConcurrency int

	WebhookURL      string
	SlackWebhookURL string

	SendGridKey  string
	SendGridFrom string
	SendGridTo   string
	SendGridHost string

	Loglevel *string
}

// PasswordLookup returns the stored password of an account.
type PasswordLookup func(accountID string) (string, error)

// ReadConfig loads envFile if it exists, decodes filename and applies the environment overrides.
func ReadConfig(filename, envFile string) (*Config, error) {
	if len(envFile) > 0 {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not read env file: %w", err)
		}
	}

	config := &Config{
		Database:          "triage.db",
		Folder:            "INBOX",
		PollInterval:      Duration{15 * time.Second},
		ReconnectDelay:    Duration{5 * time.Second},
		MaxFetchFailures:  3,
		ResyncOnReconnect: true,
		LookbackDays:      30,
		DryRun:            true,
		ChunkSize:         5,
		ChunkDelay:        Duration{time.Second},
		NotifyOn:          string(domain.Interested),
		NotifyConcurrency: 8,
	}

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	config.applyEnv()

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyEnv() {
	overrideFromEnv(&c.OpenAIKey, EnvOpenAIKey)
	overrideFromEnv(&c.SendGridKey, EnvSendGridKey)
	overrideFromEnv(&c.RspamdPassword, EnvRspamdPassword)
	for i := range c.Accounts {
		overrideFromEnv(&c.Accounts[i].Password, PasswordEnv(c.Accounts[i].ID))
	}
}

func overrideFromEnv(field *string, key string) {
	value, ok := os.LookupEnv(key)
	if ok && len(value) > 0 {
		*field = value
	}
}

// PasswordEnv is the environment variable holding the password of an account.
func PasswordEnv(accountID string) string {
	key := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, accountID)
	return EnvImapPasswordPrefix + strings.ToUpper(key)
}

// ResolvePasswords fills in the passwords of keyring accounts that were not set through the
// environment. A failing account keeps an empty password and is left out of DomainAccounts,
// the others are still resolved. The returned error joins the failures per account.
func (c *Config) ResolvePasswords(lookup PasswordLookup) error {
	errs := []error{}
	for i := range c.Accounts {
		account := &c.Accounts[i]
		if !account.PasswordKeyring || len(account.Password) > 0 {
			continue
		}

		password, err := lookup(account.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("could not read password of account %s: %w", account.ID, err))
			continue
		}
		if len(strings.TrimSpace(password)) == 0 {
			errs = append(errs, fmt.Errorf("keyring password of account %s is empty", account.ID))
			continue
		}
		account.Password = password
	}

	return errors.Join(errs...)
}

// DomainAccounts converts the accounts that have a password, keyring passwords must be
// resolved before.
func (c *Config) DomainAccounts() []*domain.Account {
	accounts := make([]*domain.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		if len(a.Password) == 0 {
			continue
		}

		tls := true
		if a.TLS != nil {
			tls = *a.TLS
		}
		name := a.Name
		if len(name) == 0 {
			name = a.ID
		}

		accounts = append(accounts, &domain.Account{
			ID:       a.ID,
			Name:     name,
			Host:     a.Host,
			User:     a.User,
			Password: a.Password,
			TLS:      tls,
			Compress: a.Compress,
		})
	}
	return accounts
}

// NeedsKeyring is true if any account password has to come from the keyring.
func (c *Config) NeedsKeyring() bool {
	for _, a := range c.Accounts {
		if a.PasswordKeyring && len(a.Password) == 0 {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	if err := validateNonEmptyStringField(c.Database, "Database name must not be empty, set to a filename for the sqlite database"); err != nil {
		return err
	}

	if len(c.Accounts) == 0 {
		return errors.New("no Accounts configured, add at least one [[Accounts]] section")
	}

	ids := map[string]bool{}
	for i, a := range c.Accounts {
		if err := validateNonEmptyStringField(a.ID, fmt.Sprintf("Accounts[%d]: ID must not be empty", i)); err != nil {
			return err
		}
		if ids[a.ID] {
			return fmt.Errorf("Accounts[%d]: duplicate ID %s", i, a.ID)
		}
		ids[a.ID] = true

		if err := validateNonEmptyStringField(a.Host, fmt.Sprintf("Accounts[%d]: Host must not be empty, set to host:port of the imap server", i)); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(a.User, fmt.Sprintf("Accounts[%d]: User must not be empty, set to username on the imap server", i)); err != nil {
			return err
		}
		if !a.PasswordKeyring {
			if err := validateNonEmptyStringField(a.Password, fmt.Sprintf("Accounts[%d]: Password must not be empty, set it, %s or PasswordKeyring", i, PasswordEnv(a.ID))); err != nil {
				return err
			}
		}
	}

	if err := validateNonEmptyStringField(c.Folder, "Folder must not be empty"); err != nil {
		return err
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("PollInterval must be positive, got %v", c.PollInterval.Duration)
	}
	if c.ReconnectDelay.Duration < 0 {
		return fmt.Errorf("ReconnectDelay must not be negative, got %v", c.ReconnectDelay.Duration)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MaxReconnectAttempts must not be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.MaxFetchFailures < 1 {
		return fmt.Errorf("MaxFetchFailures must be at least 1, got %d", c.MaxFetchFailures)
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("LookbackDays must not be negative, got %d", c.LookbackDays)
	}

	spamassassinSet := len(strings.TrimSpace(c.SpamassassinHost)) > 0
	rspamdSet := len(strings.TrimSpace(c.RspamdController)) > 0
	if rspamdSet && spamassassinSet {
		return fmt.Errorf("SpamassassinHost and RspamdController cannot be set at the same time")
	}
	if rspamdSet {
		if err := validateNonEmptyStringField(c.RspamdPassword, "RspamdPassword must be set if RspamdController is set"); err != nil {
			return err
		}
	}

	if err := validateNonEmptyStringField(c.OpenAIKey, fmt.Sprintf("OpenAIKey must not be empty, set it or %s", EnvOpenAIKey)); err != nil {
		return err
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("ChunkSize must be at least 1, got %d", c.ChunkSize)
	}
	if c.ChunkDelay.Duration < 0 {
		return fmt.Errorf("ChunkDelay must not be negative, got %v", c.ChunkDelay.Duration)
	}

	category, ok := domain.ParseCategory(c.NotifyOn)
	if !ok {
		return fmt.Errorf("NotifyOn must be one of %v, got %q", domain.Categories, c.NotifyOn)
	}
	c.NotifyOn = string(category)
	if c.NotifyConcurrency < 1 {
		return fmt.Errorf("NotifyConcurrency must be at least 1, got %d", c.NotifyConcurrency)
	}

	if len(c.SendGridKey) > 0 {
		if err := validateNonEmptyStringField(c.SendGridFrom, "SendGridFrom must be set if SendGridKey is set"); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(c.SendGridTo, "SendGridTo must be set if SendGridKey is set"); err != nil {
			return err
		}
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}
