package main

import (
	"fmt"
	"io/fs"

	"github.com/prohmpiriya/event-booking-saga/migrations"
	"github.com/prohmpiriya/event-booking-saga/pkg/config"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/spf13/cobra"
)

const (
	targetBooking   = "booking"
	targetInventory = "inventory"
)

// migrationTarget resolves the embedded schema and database URL of a service
func migrationTarget(cfg *config.Config, target string) (fs.FS, string, error) {
	switch target {
	case targetBooking:
		if err := cfg.ValidateBookingDatabase(); err != nil {
			return nil, "", err
		}
		return migrations.Booking, cfg.BookingDatabase.URL(), nil
	case targetInventory:
		if err := cfg.ValidateInventoryDatabase(); err != nil {
			return nil, "", err
		}
		return migrations.Inventory, cfg.InventoryDatabase.URL(), nil
	default:
		return nil, "", fmt.Errorf("unknown migration target %q (want %s or %s)", target, targetBooking, targetInventory)
	}
}

func newMigrateCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	var target string

	withMigrator := func(fn func(cmd *cobra.Command, m *database.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fsys, url, err := migrationTarget(cfg, target)
			if err != nil {
				return err
			}
			m, err := database.NewMigrator(fsys, target, url)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(cmd, m)
		}
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back a service schema",
	}
	migrate.PersistentFlags().StringVar(&target, "target", targetBooking, "database to migrate: booking or inventory")

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE:  withMigrator(printVersion),
		},
	)
	return migrate
}

func printVersion(cmd *cobra.Command, m *database.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("schema version %d (dirty)\n", v)
		return nil
	}
	cmd.Printf("schema version %d\n", v)
	return nil
}
