package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/repository"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/service"
	"github.com/prohmpiriya/event-booking-saga/pkg/config"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/spf13/cobra"
)

// seedEventOptions holds the flags of "seed event"
type seedEventOptions struct {
	title    string
	price    string
	capacity int
	start    string
	status   string
}

func (o *seedEventOptions) input() (*service.CreateEventInput, error) {
	start, err := time.Parse(time.RFC3339, o.start)
	if err != nil {
		return nil, fmt.Errorf("--start must be RFC3339, e.g. 2026-12-01T19:00:00Z: %w", err)
	}
	status := domain.EventStatus(strings.ToUpper(o.status))
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown event status %q", o.status)
	}
	return &service.CreateEventInput{
		Title:         o.title,
		Price:         o.price,
		Capacity:      o.capacity,
		StartDateTime: start,
		Status:        status,
	}, nil
}

func newSeedCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert fixture data",
	}

	opts := &seedEventOptions{}
	event := &cobra.Command{
		Use:   "event",
		Short: "Create an event in the inventory database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, err := opts.input()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateInventoryDatabase(); err != nil {
				return err
			}

			ctx := cmd.Context()
			dbCfg := database.ConfigFrom(cfg.InventoryDatabase, false)
			dbCfg.MinConns = 0
			db, err := database.NewPostgres(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer db.Close()

			created, err := service.NewInventoryService(repository.NewPostgresEventRepository(db.Pool())).CreateEvent(ctx, input)
			if err != nil {
				return err
			}
			cmd.Printf("created event %s (%s, %d tickets at %s)\n",
				created.ID, created.Title, created.Capacity, created.FormatPrice())
			return nil
		},
	}
	event.Flags().StringVar(&opts.title, "title", "", "event title")
	event.Flags().StringVar(&opts.price, "price", "", "ticket price, e.g. 49.90")
	event.Flags().IntVar(&opts.capacity, "capacity", 0, "number of tickets")
	event.Flags().StringVar(&opts.start, "start", "", "start date and time, RFC3339")
	event.Flags().StringVar(&opts.status, "status", string(domain.EventStatusPublished), "DRAFT, PUBLISHED, CANCELLED or COMPLETED")
	for _, name := range []string{"title", "price", "capacity", "start"} {
		_ = event.MarkFlagRequired(name)
	}

	seed.AddCommand(event)
	return seed
}
