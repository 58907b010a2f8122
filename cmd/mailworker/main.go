// Command mailworker drains the queued mail topic and delivers each message
// over SMTP. It pairs with a server running with email.transport=kafka.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/charlesng35/taskhub/internal/app"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/mail"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("taskhub-mailworker", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel, cfg.Server.Development); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("mailworker")

	smtpSettings := cfg.Email.SMTPSettings()
	if !smtpSettings.Enabled {
		return errors.New("email.smtp.enabled must be true for the mail worker")
	}
	delivery, err := mail.NewSMTPMailer(smtpSettings)
	if err != nil {
		return fmt.Errorf("initialise smtp mailer: %w", err)
	}

	kafkaSettings := cfg.Email.KafkaSettings()
	consumer, err := mail.NewKafkaConsumer(kafkaSettings, delivery, log)
	if err != nil {
		return fmt.Errorf("initialise kafka consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Warn("kafka consumer shutdown", zap.Error(err))
		}
	}()

	log.Info("mail worker consuming",
		zap.Strings("brokers", kafkaSettings.Brokers),
		zap.String("topic", kafkaSettings.Topic),
		zap.String("group_id", kafkaSettings.GroupID),
	)
	if err := consumer.Run(ctx); err != nil {
		return err
	}

	log.Info("mail worker stopped")
	return nil
}

func loadConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfig(filepath.Dir(path))
}
