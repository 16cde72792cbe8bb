// Package migrations embeds the SQL schema of each service.
package migrations

import "embed"

// Booking holds the booking service schema, applied from the "booking" directory
//
//go:embed booking/*.sql
var Booking embed.FS

// Inventory holds the inventory service schema, applied from the "inventory" directory
//
//go:embed inventory/*.sql
var Inventory embed.FS
