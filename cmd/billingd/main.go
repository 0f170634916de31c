package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/app/repository"
	"github.com/anthonyumpad/gobilling/internal/pkg/billing"
	"github.com/anthonyumpad/gobilling/internal/pkg/cache"
	"github.com/anthonyumpad/gobilling/internal/pkg/config"
	"github.com/anthonyumpad/gobilling/internal/pkg/database"
	"github.com/anthonyumpad/gobilling/internal/pkg/env"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
	stripegw "github.com/anthonyumpad/gobilling/internal/pkg/gateway/stripe"
	"github.com/anthonyumpad/gobilling/internal/pkg/subscription"
	"github.com/anthonyumpad/gobilling/internal/pkg/topup"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	cfg := config.LoadBilling()
	repos := repository.NewRepositories(database.GetDB())
	dispatcher := events.NewRedisDispatcher(cache.GetClient())

	registry, err := buildRegistry(database.GetDB())
	if err != nil {
		log.Fatalf("gateway registry: %v", err)
	}

	svc := billing.NewService(repos, registry, dispatcher)
	subs := subscription.NewEngine(repos, svc, dispatcher, cfg)
	topups := topup.NewEngine(repos, svc, dispatcher, cfg)

	sweepInterval := 1 * time.Hour
	if raw := env.GetEnv("BILLING_SWEEP_INTERVAL_MINUTES", ""); raw != "" {
		if d, err := time.ParseDuration(raw + "m"); err == nil && d > 0 {
			sweepInterval = d
		}
	}
	sweeper := subscription.NewSweeper(sweepInterval,
		subscription.Task{Name: "subscriptions", Run: subs.RunAutoCharge},
		subscription.Task{Name: "topups", Run: topups.RunAutoCharge},
	)
	sweeper.Start()
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{AppName: "billingd"})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "gateways": len(registry.Entries())})
	})

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4100"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	if err := app.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// buildRegistry loads the configured gateways from the database and binds an
// adapter to each. A fresh database gets a default Stripe gateway seeded so
// the daemon comes up chargeable.
func buildRegistry(db *gorm.DB) (*gateway.Registry, error) {
	var rows []models.Gateway
	if err := db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		seed := models.Gateway{
			Name:        stripegw.GatewayName,
			IsDefault:   true,
			GatewayType: models.GatewayTypeStripe,
			Description: "Stripe payment gateway",
		}
		if err := db.Create(&seed).Error; err != nil {
			return nil, err
		}
		rows = []models.Gateway{seed}
	}

	entries := make([]gateway.Entry, 0, len(rows))
	for _, row := range rows {
		switch row.GatewayType {
		case models.GatewayTypeStripe:
			key := env.GetEnv("STRIPE_SECRET_KEY", "")
			if key == "" {
				return nil, fmt.Errorf("gateway %q requires STRIPE_SECRET_KEY", row.Name)
			}
			entries = append(entries, gateway.Entry{Model: row, Adapter: stripegw.New(key)})
		default:
			return nil, fmt.Errorf("gateway %q has unknown type %q", row.Name, row.GatewayType)
		}
	}
	return gateway.NewRegistry(entries...)
}
