// Package app wires the domain services shared by the api and cron-worker
// binaries.
package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/internal/commission"
	"github.com/angelmondragon/courier-dispatch/internal/deliveries"
	"github.com/angelmondragon/courier-dispatch/internal/dispatch"
	"github.com/angelmondragon/courier-dispatch/internal/earnings"
	"github.com/angelmondragon/courier-dispatch/internal/incentives"
	"github.com/angelmondragon/courier-dispatch/internal/milestones"
	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/maps"
	"github.com/angelmondragon/courier-dispatch/pkg/metrics"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
)

// Services holds one instance of every domain service.
type Services struct {
	Allocation  allocation.Service
	Coordinator *dispatch.Coordinator
	Scheduler   *dispatch.TimerScheduler
	Earnings    earnings.Service
	Commission  commission.Service
	Incentives  incentives.Service
	Milestones  milestones.Service
	Deliveries  deliveries.Service
	Outbox      *outbox.Service
}

// Params are the process-level dependencies the services are built on.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Registry prometheus.Registerer
	Now      func() time.Time
}

// NewServices builds the service graph. Every service writes its events to
// the same outbox.
func NewServices(p Params) (*Services, error) {
	if p.Config == nil || p.DB == nil {
		return nil, fmt.Errorf("config and db are required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = db.UTCNow
	}
	conn := p.DB.DB()
	events := outbox.NewService(outbox.NewRepository(conn), p.Logger)

	alloc, err := allocation.NewService(allocation.NewRepository(conn), p.Logger)
	if err != nil {
		return nil, fmt.Errorf("allocation service: %w", err)
	}

	distance, err := distanceProvider(p.Config.Maps)
	if err != nil {
		return nil, err
	}

	scheduler := dispatch.NewTimerScheduler()
	coordinator, err := dispatch.NewCoordinator(dispatch.CoordinatorParams{
		DB:        p.DB,
		Repo:      dispatch.NewRepository(conn),
		Settings:  alloc,
		Registry:  dispatch.DefaultRegistry(),
		Directory: dispatch.NewAgentDirectory(conn),
		Distance:  distance,
		Events:    events,
		Scheduler: scheduler,
		Metrics:   metrics.NewDispatchMetrics(p.Registry),
		Logger:    p.Logger,
		Now:       p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch coordinator: %w", err)
	}

	earningsLoc, err := p.Config.Earnings.Location()
	if err != nil {
		return nil, err
	}
	earn, err := earnings.NewService(earnings.ServiceParams{
		Repo:     earnings.NewRepository(conn),
		Config:   p.Config.Earnings,
		Location: earningsLoc,
		Logger:   p.Logger,
		Now:      p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("earnings service: %w", err)
	}

	comm, err := commission.NewService(commission.NewRepository(conn), p.Logger)
	if err != nil {
		return nil, fmt.Errorf("commission service: %w", err)
	}

	incentiveLoc, err := p.Config.Incentives.Location()
	if err != nil {
		return nil, err
	}
	inc, err := incentives.NewService(incentives.ServiceParams{
		DB:       p.DB,
		Repo:     incentives.NewRepository(conn),
		Events:   events,
		Location: incentiveLoc,
		Logger:   p.Logger,
		Now:      p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("incentive service: %w", err)
	}

	ms, err := milestones.NewService(milestones.ServiceParams{
		DB:     p.DB,
		Repo:   milestones.NewRepository(conn),
		Events: events,
		Logger: p.Logger,
		Now:    p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("milestone service: %w", err)
	}

	deliv, err := deliveries.NewService(deliveries.ServiceParams{
		DB:         p.DB,
		Repo:       deliveries.NewRepository(conn),
		Earnings:   earn,
		Milestones: ms,
		Commission: comm,
		Events:     events,
		Logger:     p.Logger,
		Now:        p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("delivery service: %w", err)
	}

	return &Services{
		Allocation:  alloc,
		Coordinator: coordinator,
		Scheduler:   scheduler,
		Earnings:    earn,
		Commission:  comm,
		Incentives:  inc,
		Milestones:  ms,
		Deliveries:  deliv,
		Outbox:      events,
	}, nil
}

// distanceProvider returns the Routes client when a maps key is configured
// and the haversine default otherwise.
func distanceProvider(cfg config.MapsConfig) (dispatch.DistanceProvider, error) {
	if !cfg.Enabled() {
		return dispatch.StraightLine{}, nil
	}
	client, err := maps.NewClient(cfg.APIKey,
		maps.WithBaseURL(cfg.BaseURL),
		maps.WithTravelMode(cfg.TravelMode),
		maps.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return client, nil
}
