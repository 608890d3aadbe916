package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/auth"
	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
	"github.com/xenking/pizza-delivery/internal/domain/pizza"
	"github.com/xenking/pizza-delivery/internal/repository"
)

// seedNamespace derives stable pizza IDs from names so reseeding updates
// rather than duplicates the menu.
var seedNamespace = uuid.MustParse("6f1c8a52-3b0e-4c55-9d1a-2f8e4b7c9a10")

type ingredientJSON struct {
	Category    string          `json:"category"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Threshold   int             `json:"threshold"`
}

type pizzaJSON struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Image       string                     `json:"image"`
	Category    string                     `json:"category"`
	Variants    []string                   `json:"variants"`
	Prices      map[string]decimal.Decimal `json:"prices"`
}

type options struct {
	databaseURL     string
	ingredientsFile string
	pizzasFile      string
	customerKey     string
	adminKey        string
	apiKeyPepper    string
	adminEmail      string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.ingredientsFile, "ingredients-file", "db/seed/ingredients.json", "path to ingredients JSON file")
	flag.StringVar(&opts.pizzasFile, "pizzas-file", "db/seed/pizzas.json", "path to pizzas JSON file")
	flag.StringVar(&opts.customerKey, "customer-key", "", "API key for the demo customer (or PIZZA_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&opts.adminKey, "admin-key", "", "API key for the demo admin (or PIZZA_SEED_ADMIN_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PIZZA_API_KEY_PEPPER env)")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@pizza.local", "email of the demo admin")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.databaseURL = orEnv(opts.databaseURL, "DATABASE_URL")
	opts.customerKey = orEnv(opts.customerKey, "PIZZA_SEED_CUSTOMER_KEY")
	opts.adminKey = orEnv(opts.adminKey, "PIZZA_SEED_ADMIN_KEY")
	opts.apiKeyPepper = orEnv(opts.apiKeyPepper, "PIZZA_API_KEY_PEPPER")

	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.customerKey == "" || opts.adminKey == "" {
		lg.Fatal("API keys are required: set --customer-key and --admin-key")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedIngredients(ctx, lg, repository.NewIngredientRepository(pool), opts.ingredientsFile); err != nil {
		return errors.Wrap(err, "seed ingredients")
	}
	if err := seedPizzas(ctx, lg, repository.NewPizzaRepository(pool), opts.pizzasFile); err != nil {
		return errors.Wrap(err, "seed pizzas")
	}
	if err := seedUsers(ctx, lg, pool, opts); err != nil {
		return errors.Wrap(err, "seed users")
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func seedIngredients(ctx context.Context, lg *zap.Logger, repo *repository.IngredientRepository, path string) error {
	var items []ingredientJSON
	if err := readJSON(path, &items); err != nil {
		return err
	}
	lg.Info("Upserting ingredients", zap.Int("count", len(items)))

	for _, it := range items {
		ing := ingredient.Ingredient{
			Category:    ingredient.Category(it.Category),
			Name:        it.Name,
			Description: it.Description,
			Price:       it.Price,
			Quantity:    it.Quantity,
			Threshold:   it.Threshold,
		}
		if err := ing.Validate(); err != nil {
			return errors.Wrapf(err, "ingredient %q", it.Name)
		}
		if err := repo.Upsert(ctx, &ing); err != nil {
			return err
		}
		lg.Debug("Upserted ingredient", zap.String("name", ing.Name), zap.String("category", it.Category))
	}
	return nil
}

func seedPizzas(ctx context.Context, lg *zap.Logger, repo *repository.PizzaRepository, path string) error {
	var items []pizzaJSON
	if err := readJSON(path, &items); err != nil {
		return err
	}
	lg.Info("Upserting pizzas", zap.Int("count", len(items)))

	for _, it := range items {
		p := pizza.Pizza{
			ID:          uuid.NewSHA1(seedNamespace, []byte(strings.ToLower(it.Name))).String(),
			Name:        it.Name,
			Description: it.Description,
			Image:       it.Image,
			Category:    it.Category,
			Variants:    it.Variants,
			Prices:      it.Prices,
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "pizza %q", it.Name)
		}

		err := repo.Update(ctx, &p)
		if errors.Is(err, pizza.ErrNotFound) {
			err = repo.Create(ctx, &p)
		}
		if err != nil {
			return err
		}
		lg.Debug("Upserted pizza", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

func seedUsers(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, opts options) error {
	users := repository.NewUserRepository(pool)
	keys := repository.NewAPIKeyRepository(pool)

	for _, s := range []struct {
		user   auth.User
		keyID  string
		key    string
		scopes []string
	}{
		{
			user:   auth.User{ID: "demo-customer", Name: "Demo Customer", Email: "customer@pizza.local"},
			keyID:  "demo-customer-key",
			key:    opts.customerKey,
			scopes: []string{"orders"},
		},
		{
			user:   auth.User{ID: "demo-admin", Name: "Demo Admin", Email: opts.adminEmail},
			keyID:  "demo-admin-key",
			key:    opts.adminKey,
			scopes: []string{"orders", auth.ScopeAdmin},
		},
	} {
		if err := users.Upsert(ctx, s.user); err != nil {
			return err
		}
		if err := keys.Upsert(ctx, auth.APIKeyInfo{
			ID:      s.keyID,
			KeyHash: auth.HashKey([]byte(opts.apiKeyPepper), s.key),
			UserID:  s.user.ID,
			Name:    s.user.Name,
			Scopes:  s.scopes,
		}); err != nil {
			return err
		}
		lg.Info("Upserted user", zap.String("id", s.user.ID), zap.Strings("scopes", s.scopes))
	}
	return nil
}
