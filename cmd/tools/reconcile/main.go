package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tournetwork/storefront/internal/ledger"
)

// reconcile compares the ledger rows of bookings with their confirmation
// events. Exit code 0 = all matched, 1 = mismatch, 2 = other error.
func main() {
	var (
		bookings    = flag.String("bookings", "", "comma separated booking ids to check")
		databaseURL = flag.String("database-url", "", "ledger database; defaults to DATABASE_URL")
		migrateUp   = flag.Bool("migrate", false, "apply ledger migrations before checking")
		timeout     = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}
	dsn := strings.TrimSpace(*databaseURL)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "reconcile: DATABASE_URL is required")
		os.Exit(2)
	}

	if *migrateUp {
		if err := ledger.Migrate(dsn); err != nil {
			fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
			os.Exit(2)
		}
		log.Println("ledger migrations applied")
	}

	ids := splitIDs(*bookings)
	if len(ids) == 0 {
		if *migrateUp {
			return
		}
		fmt.Fprintln(os.Stderr, "reconcile: -bookings is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	pool, err := ledger.Open(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(2)
	}
	defer pool.Close()

	store := &ledger.Store{DB: pool}
	mismatches := 0
	for _, id := range ids {
		rec, err := store.Reconcile(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
			pool.Close()
			os.Exit(2)
		}
		fmt.Println(describe(rec))
		if !rec.Matched {
			mismatches++
		}
	}
	if mismatches > 0 {
		pool.Close()
		os.Exit(1)
	}
}

func splitIDs(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func describe(rec ledger.Reconciliation) string {
	switch {
	case rec.Items == 0:
		return fmt.Sprintf("MISSING  %s: no ledger rows", rec.BookingID)
	case !rec.EventSeen:
		return fmt.Sprintf("PENDING  %s: %d items totalling %s, no confirmation event", rec.BookingID, rec.Items, rec.ItemsTotal.StringFixed(2))
	case !rec.Matched:
		return fmt.Sprintf("MISMATCH %s: items %s, event %s", rec.BookingID, rec.ItemsTotal.StringFixed(2), rec.EventTotal.StringFixed(2))
	default:
		return fmt.Sprintf("OK       %s: %d items, %s", rec.BookingID, rec.Items, rec.ItemsTotal.StringFixed(2))
	}
}
