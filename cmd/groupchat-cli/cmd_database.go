package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"collab-server/services/groupchat-api/internal/infrastructure/audit"
	"collab-server/services/groupchat-api/internal/infrastructure/database"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/auditrepo"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  `Apply every bundled SQL migration that has not yet run against DATABASE_URL.`,
	RunE:  runMigrate,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log maintenance commands",
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete the oldest audit rows over the retention limit",
	Long:  `Run the audit retention job once. Rows are removed oldest first in batches.`,
	RunE:  runAuditPrune,
}

func init() {
	auditCmd.AddCommand(auditPruneCmd)

	migrateCmd.Flags().String("database-url", "", "PostgreSQL DSN (default: $DATABASE_URL)")

	auditPruneCmd.Flags().String("database-url", "", "PostgreSQL DSN (default: $DATABASE_URL)")
	auditPruneCmd.Flags().Int("max-rows", audit.DefaultRetentionMaxRows, "Rows to keep")
	auditPruneCmd.Flags().Int("batch", audit.DefaultRetentionBatch, "Minimum rows deleted per run")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, log, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	if err := database.Migrate(ctx, db, log); err != nil {
		return err
	}
	fmt.Println("✓ Migrations applied")
	return nil
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	db, log, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close(db)

	maxRows, _ := cmd.Flags().GetInt("max-rows")
	batch, _ := cmd.Flags().GetInt("batch")

	retention := audit.NewRetention(auditrepo.NewAuditGormRepository(db), nil, audit.RetentionConfig{
		MaxRows: maxRows,
		Batch:   batch,
	}, log)

	ctx, cancel := context.WithTimeout(cmd.Context(), audit.RetentionJobTimeout)
	defer cancel()
	deleted, err := retention.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Deleted %d audit rows\n", deleted)
	return nil
}

func openDatabase(cmd *cobra.Command) (*gorm.DB, zerolog.Logger, error) {
	log := cliLogger(cmd)

	dsn, _ := cmd.Flags().GetString("database-url")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, log, fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
	}

	db, err := database.Connect(database.Config{DSN: dsn})
	if err != nil {
		return nil, log, err
	}
	return db, log, nil
}

func cliLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
}
