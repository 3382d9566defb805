package cmd

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-auth-api/app/repository"
	"go-auth-api/app/service"
	"go-auth-api/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired sessions and verification tokens",
	Long:  `One-shot maintenance: hard-deletes expired sessions and used or expired verification tokens. Intended to run from cron.`,
	Run:   runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	database, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sessionRepo := repository.NewSessionRepository(database)
	deletedSessions, err := sessionRepo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to delete expired sessions")
	}
	logrus.WithField("count", deletedSessions).Info("Deleted expired sessions")

	verificationRepo := repository.NewVerificationTokenRepository(database)
	verificationService := service.NewVerificationService(database, verificationRepo, cfg)
	if _, err := verificationService.CleanupExpired(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to delete expired verification tokens")
	}
}
