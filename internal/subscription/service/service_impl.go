package service

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/clock"
	"github.com/openfoodhub/foodhub/internal/diagnostics"
	"github.com/openfoodhub/foodhub/internal/notification"
	ordercycledomain "github.com/openfoodhub/foodhub/internal/ordercycle/domain"
	paymentdomain "github.com/openfoodhub/foodhub/internal/payment/domain"
	"github.com/openfoodhub/foodhub/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("subscription service missing required dependencies")

// Config bounds matcher batches and claim staleness.
type Config struct {
	BatchSize            int
	ClaimTTL             time.Duration
	ConfirmationLookback time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:            50,
		ClaimTTL:             10 * time.Minute,
		ConfirmationLookback: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = defaults.ClaimTTL
	}
	if c.ConfirmationLookback <= 0 {
		c.ConfirmationLookback = defaults.ConfirmationLookback
	}
	return c
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	SubRepo     domain.Repository
	CycleRepo   ordercycledomain.Repository
	Notifier    notification.Enqueuer
	Gateway     paymentdomain.Gateway
	Diagnostics diagnostics.Reporter
	Config      Config `optional:"true"`
}

// Service is the subscription/order-cycle matcher.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       Config
	subRepo   domain.Repository
	cycleRepo ordercycledomain.Repository
	notifier  notification.Enqueuer
	gateway   paymentdomain.Gateway
	diag      diagnostics.Reporter
}

func New(p Params) (domain.Service, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.SubRepo == nil || p.CycleRepo == nil || p.Notifier == nil || p.Gateway == nil || p.Diagnostics == nil {
		return nil, ErrInvalidConfig
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription").With(zap.String("component", "matcher")),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config.withDefaults(),
		subRepo:   p.SubRepo,
		cycleRepo: p.CycleRepo,
		notifier:  p.Notifier,
		gateway:   p.Gateway,
		diag:      p.Diagnostics,
	}, nil
}
