// Command migrate применяет встроенные миграции схемы магазина к PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/camisetas/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envDSN         = "SHOP_POSTGRES_DSN"
)

type direction string

const (
	directionUp     direction = "up"
	directionDown   direction = "down"
	directionStatus direction = "status"
)

type options struct {
	direction direction
	steps     int
	dsn       string
}

// migrationStore: часть *postgres.Store, нужная командам.
type migrationStore interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	Status(ctx context.Context) (postgres.MigrationStatus, error)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := execute(ctx, store, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts options
		dir  string
	)

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&dir, "direction", string(directionUp), "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envDSN+")")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = direction(strings.ToLower(strings.TrimSpace(dir)))
	switch opts.direction {
	case directionUp, directionDown, directionStatus:
	default:
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", dir)
	}
	if opts.steps < 0 {
		return options{}, errors.New("steps must be >= 0")
	}

	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(envDSN))
	}
	if opts.dsn == "" {
		return options{}, errors.New(envDSN + " (or -dsn) is required")
	}
	return opts, nil
}

func execute(ctx context.Context, store migrationStore, opts options, out io.Writer) error {
	prefix := "migration status"
	switch opts.direction {
	case directionUp:
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		prefix = "migrate up ok"
	case directionDown:
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		prefix = "migrate down ok"
	}

	status, err := store.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintln(out, formatStatus(prefix, status))
	return err
}

func formatStatus(prefix string, status postgres.MigrationStatus) string {
	return fmt.Sprintf("%s: version=%d applied=%d pending=%d", prefix, status.CurrentVersion, status.Applied, status.Pending())
}

func fail(format string, args ...any) {
	log.Errorf(format, args...)
	os.Exit(1)
}
