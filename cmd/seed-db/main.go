// Command seed-db provisions a demo wholesaler and vendor, their API keys and
// one open contract.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/vconn/internal/domain/auth"
	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/repository"
)

const (
	demoWholesalerID = "demo-wholesaler"
	demoVendorID     = "demo-vendor"
	demoProduct      = "Roma tomatoes"
)

type options struct {
	databaseURL   string
	pepper        string
	wholesalerKey string
	vendorKey     string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or VCONN_API_KEY_PEPPER env)")
	flag.StringVar(&opts.wholesalerKey, "wholesaler-key", "", "API key for the demo wholesaler (or VCONN_SEED_WHOLESALER_KEY env)")
	flag.StringVar(&opts.vendorKey, "vendor-key", "", "API key for the demo vendor (or VCONN_SEED_VENDOR_KEY env)")
	flag.Parse()

	fromEnv(&opts.databaseURL, "DATABASE_URL")
	fromEnv(&opts.pepper, "VCONN_API_KEY_PEPPER")
	fromEnv(&opts.wholesalerKey, "VCONN_SEED_WHOLESALER_KEY")
	fromEnv(&opts.vendorKey, "VCONN_SEED_VENDOR_KEY")

	switch {
	case opts.databaseURL == "":
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	case opts.pepper == "":
		slog.Error("API key pepper is required: set --api-key-pepper or VCONN_API_KEY_PEPPER")
		os.Exit(1)
	case opts.wholesalerKey == "" || opts.vendorKey == "":
		slog.Error("both --wholesaler-key and --vendor-key are required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func fromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	actors := repository.NewActorRepository(pool)
	keys := repository.NewAPIKeyRepository(pool)
	contracts := repository.NewContractRepository(pool)
	registry := contract.NewRegistry(repository.NewTxRunner(pool, nil), contracts)

	profiles := []struct {
		profile auth.Profile
		key     string
	}{
		{
			profile: auth.Profile{
				Actor:        auth.Actor{ID: demoWholesalerID, Role: auth.RoleWholesaler},
				Name:         "Demo Wholesaler",
				Email:        "wholesaler@example.com",
				Phone:        "+10000000001",
				BusinessName: "Green Fields Produce",
				Address:      "12 Market Road, Pune",
			},
			key: opts.wholesalerKey,
		},
		{
			profile: auth.Profile{
				Actor:        auth.Actor{ID: demoVendorID, Role: auth.RoleVendor},
				Name:         "Demo Vendor",
				Email:        "vendor@example.com",
				Phone:        "+10000000002",
				BusinessName: "Corner Street Salads",
				Address:      "4 Station Lane, Pune",
			},
			key: opts.vendorKey,
		},
	}
	for _, p := range profiles {
		if err := actors.Upsert(ctx, p.profile); err != nil {
			return errors.Wrapf(err, "upsert actor %s", p.profile.ID)
		}
		info := auth.APIKeyInfo{
			ID:      p.profile.ID + "-key",
			KeyHash: hex.EncodeToString(auth.HashAPIKey([]byte(opts.pepper), p.key)),
			Name:    p.profile.Name + " key",
			Actor:   p.profile.Actor,
		}
		if err := keys.Upsert(ctx, info); err != nil {
			return errors.Wrapf(err, "upsert api key for %s", p.profile.ID)
		}
		slog.Info("upserted actor",
			slog.String("id", p.profile.ID),
			slog.String("role", string(p.profile.Role)),
		)
	}

	return seedContract(ctx, registry)
}

func seedContract(ctx context.Context, registry *contract.Registry) error {
	existing, err := registry.ActiveByWholesaler(ctx, demoWholesalerID)
	if err != nil {
		return errors.Wrap(err, "list demo contracts")
	}
	for _, c := range existing {
		if c.ProductName == demoProduct {
			slog.Info("demo contract already open", slog.String("id", c.ID))
			return nil
		}
	}

	c, err := registry.Create(ctx, demoWholesalerID, contract.Fields{
		ProductName:   demoProduct,
		DailyQuantity: 40,
		PricePerUnit:  decimal.RequireFromString("1.85"),
		DurationDays:  30,
		Description:   "Daily delivery before 7am",
	})
	if err != nil {
		return errors.Wrap(err, "create demo contract")
	}
	slog.Info("created demo contract", slog.String("id", c.ID), slog.String("product", c.ProductName))
	return nil
}
