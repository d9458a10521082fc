// Command seed-db applies migrations and seeds an admin account and the
// item catalog.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/session"
	"github.com/xenking/canteen/internal/domain/user"
	"github.com/xenking/canteen/internal/storage/docrepo"
	"github.com/xenking/canteen/internal/storage/postgres"
)

type itemJSON struct {
	Name  string          `json:"itemName"`
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"price"`
}

type options struct {
	databaseURL   string
	itemsFile     string
	adminEmail    string
	adminPassword string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.itemsFile, "items-file", "db/seed/items.json", "path to items JSON file, optionally gzipped")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@canteen.local", "email of the seeded admin account")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin password (or CANTEEN_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.adminPassword == "" {
		opts.adminPassword = os.Getenv("CANTEEN_SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Running migrations")
	if err := postgres.RunMigrations(opts.databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	if opts.adminPassword != "" {
		if err := seedAdmin(ctx, lg, session.NewGate(docrepo.NewUserRepository(store), 0), opts); err != nil {
			return errors.Wrap(err, "seed admin")
		}
	} else {
		lg.Info("No admin password given, skipping admin account")
	}

	if err := seedItems(ctx, lg, item.NewService(docrepo.NewItemRepository(store)), opts.itemsFile); err != nil {
		return errors.Wrap(err, "seed items")
	}
	return nil
}

func seedAdmin(ctx context.Context, lg *zap.Logger, gate *session.Gate, opts options) error {
	u, err := gate.Register(ctx, session.RegisterRequest{
		Email:    opts.adminEmail,
		Password: opts.adminPassword,
		Username: "admin",
		Role:     user.RoleAdmin,
	})
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		lg.Info("Admin account already exists", zap.String("email", opts.adminEmail))
		return nil
	case err != nil:
		return err
	}
	lg.Info("Created admin account", zap.String("id", u.ID), zap.String("email", u.Email))
	return nil
}

func readItems(path string) ([]itemJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open items file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var items []itemJSON
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "parse items JSON")
	}
	return items, nil
}

// seedItems adds every item whose name is not already in the catalog.
func seedItems(ctx context.Context, lg *zap.Logger, catalog *item.Service, path string) error {
	lg.Info("Reading items file", zap.String("path", path))
	items, err := readItems(path)
	if err != nil {
		return err
	}

	existing, err := catalog.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list items")
	}
	known := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		known[strings.ToLower(it.Name)] = struct{}{}
	}

	for _, in := range items {
		if _, ok := known[strings.ToLower(in.Name)]; ok {
			lg.Debug("Item exists, skipping", zap.String("name", in.Name))
			continue
		}
		it, err := catalog.Add(ctx, item.Input{Name: in.Name, Stock: in.Stock, Price: in.Price})
		if err != nil {
			return errors.Wrapf(err, "add item %q", in.Name)
		}
		known[strings.ToLower(in.Name)] = struct{}{}
		lg.Info("Added item", zap.String("id", it.ID), zap.String("name", it.Name))
	}
	return nil
}
