package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/config"
	"github.com/happybusride/booking-backend/internal/database"
)

// bookingTables hold per-sale state; inventory (operators, buses, seats,
// schedules) is kept
var bookingTables = []string{
	"wallet_transactions",
	"refunds",
	"operator_earnings",
	"payments",
	"booking_seats",
	"booking_passengers",
	"bookings",
	"seat_locks",
}

func main() {
	var (
		dbURLFlag    string
		driverFlag   string
		includeTrips bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&driverFlag, "driver", "pgx", "database driver: pgx or postgres")
	flag.BoolVar(&includeTrips, "include-trips", false, "also delete generated trips")
	flag.Parse()

	logger := logrus.New()

	// .env is optional; it keeps secrets off the command line
	_ = godotenv.Load()

	if os.Getenv("ENVIRONMENT") == "production" {
		logger.Fatal("Refusing to clear data with ENVIRONMENT=production")
	}

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		Driver:             driverFlag,
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
		ConnMaxLifetime:    time.Minute,
	}, logger)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := bookingTables
	if includeTrips {
		tables = append(tables, "trips")
	}

	truncateSQL := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	if _, err := db.Exec(truncateSQL); err != nil {
		logger.Fatalf("failed to truncate tables: %v", err)
	}
	if _, err := db.Exec(`UPDATE users SET wallet_balance = 0`); err != nil {
		logger.Fatalf("failed to reset wallets: %v", err)
	}

	fields := logrus.Fields{}
	for _, table := range tables {
		var count int
		if err := db.Get(&count, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
			logger.Fatalf("failed to count %s: %v", table, err)
		}
		fields[table] = count
	}
	logger.WithFields(fields).Info("Booking data cleared")
}
