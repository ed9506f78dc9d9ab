package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/courier-dispatch/api/controllers"
	"github.com/angelmondragon/courier-dispatch/api/middleware"
	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/internal/commission"
	"github.com/angelmondragon/courier-dispatch/internal/deliveries"
	"github.com/angelmondragon/courier-dispatch/internal/earnings"
	"github.com/angelmondragon/courier-dispatch/internal/incentives"
	"github.com/angelmondragon/courier-dispatch/internal/milestones"
	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/metrics"
	pkgredis "github.com/angelmondragon/courier-dispatch/pkg/redis"
)

// RouterParams carries everything the HTTP surface is built from. Idempotency
// and Gatherer may be nil; the corresponding features are then disabled.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Dispatcher controllers.Dispatcher
	Deliveries deliveries.Service
	Allocation allocation.Service
	Earnings   earnings.Service
	Commission commission.Service
	Incentives incentives.Service
	Milestones milestones.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if p.Idempotency != nil {
			r.Use(middleware.Idempotency(p.Idempotency, logg))
		}

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/dispatch", controllers.DispatchOrder(p.Dispatcher, logg))
			r.Post("/offers/respond", controllers.RespondToOffer(p.Dispatcher, logg))
			r.Post("/assign", controllers.ManuallyAssign(p.Dispatcher, logg))
			r.Post("/pickup", controllers.MarkPickedUp(p.Deliveries, logg))
			r.Post("/complete", controllers.CompleteDelivery(p.Deliveries, logg))
			r.Post("/commission", controllers.RecordOrderCommission(p.Commission, logg))
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/allocation", controllers.GetAllocationSettings(p.Allocation, logg))
			r.Put("/allocation", controllers.UpdateAllocationSettings(p.Allocation, logg))
			r.Get("/earnings", controllers.ListEarningSettings(p.Earnings, logg))
			r.Put("/earnings", controllers.UpsertEarningSetting(p.Earnings, logg))
			r.Get("/commission", controllers.ListCommissionSettings(p.Commission, logg))
			r.Put("/commission", controllers.UpsertCommissionSetting(p.Commission, logg))
		})
		r.Post("/merchants/{merchantId}/commission/quote", controllers.QuoteCommission(p.Commission, logg))

		r.Route("/incentives", func(r chi.Router) {
			r.Get("/plans", controllers.ListIncentivePlans(p.Incentives, logg))
			r.Post("/plans", controllers.CreateIncentivePlan(p.Incentives, logg))
			r.Post("/batch", controllers.RunIncentiveBatch(p.Incentives, logg))
		})
		r.Get("/incentive-earnings", controllers.ListIncentiveEarnings(p.Incentives, logg))

		r.Route("/milestones/rewards", func(r chi.Router) {
			r.Get("/", controllers.ListMilestoneRewards(p.Milestones, logg))
			r.Post("/", controllers.CreateMilestoneReward(p.Milestones, logg))
		})

		r.Route("/agents/{agentId}", func(r chi.Router) {
			r.Get("/earnings", controllers.ListAgentEarnings(p.Earnings, logg))
			r.Get("/milestones", controllers.AgentMilestones(p.Milestones, logg))
			r.Post("/milestones/{milestoneId}/claim", controllers.ClaimMilestone(p.Milestones, logg))
		})
	})

	return r
}
