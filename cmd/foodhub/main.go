package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/backorder"
	"github.com/openfoodhub/foodhub/internal/billing"
	"github.com/openfoodhub/foodhub/internal/clock"
	"github.com/openfoodhub/foodhub/internal/config"
	"github.com/openfoodhub/foodhub/internal/diagnostics"
	"github.com/openfoodhub/foodhub/internal/enterprise"
	"github.com/openfoodhub/foodhub/internal/logger"
	"github.com/openfoodhub/foodhub/internal/migration"
	"github.com/openfoodhub/foodhub/internal/notification"
	"github.com/openfoodhub/foodhub/internal/ordercycle"
	"github.com/openfoodhub/foodhub/internal/payment"
	"github.com/openfoodhub/foodhub/internal/scheduler"
	"github.com/openfoodhub/foodhub/internal/server"
	"github.com/openfoodhub/foodhub/internal/subscription"
	"github.com/openfoodhub/foodhub/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		diagnostics.Module,

		// Functional domains
		enterprise.Module,
		ordercycle.Module,
		billing.Module,
		subscription.Module,
		notification.Module,
		backorder.Module,
		payment.Module,

		// Runtime
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
