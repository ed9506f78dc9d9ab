package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/internal/commission"
	"github.com/angelmondragon/courier-dispatch/internal/earnings"
	"github.com/angelmondragon/courier-dispatch/internal/milestones"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/payloads"
)

const (
	OutcomeDelivered        = "delivered"
	OutcomeAlreadyDelivered = "already_delivered"
	OutcomeInTransit        = "in_transit"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type earningRecorder interface {
	Record(ctx context.Context, input earnings.RecordInput) (*earnings.RecordResult, error)
}

type milestoneRecorder interface {
	RecordDelivery(ctx context.Context, ev milestones.DeliveryEvent) (*milestones.RecordResult, error)
}

type commissionRecorder interface {
	RecordForOrder(ctx context.Context, orderID uuid.UUID) (*commission.RecordResult, error)
}

// CompletionInput reports a finished delivery.
type CompletionInput struct {
	OrderID   uuid.UUID        `json:"-"`
	AgentID   uuid.UUID        `json:"agentId" validate:"required"`
	OnTime    bool             `json:"onTime"`
	TipAmount *decimal.Decimal `json:"tipAmount"`
	Raining   bool             `json:"raining"`
}

// CompletionResult is what a completion produced. A retried completion
// returns the stored earning with Outcome already_delivered.
type CompletionResult struct {
	OrderID         uuid.UUID            `json:"orderId"`
	AgentID         uuid.UUID            `json:"agentId"`
	Outcome         string               `json:"outcome"`
	DeliveredAt     *time.Time           `json:"deliveredAt,omitempty"`
	Earning         *models.AgentEarning `json:"earning"`
	CompletedLevels []int                `json:"completedLevels,omitempty"`
}

// Service records pickups and completed deliveries.
type Service interface {
	MarkPickedUp(ctx context.Context, orderID, agentID uuid.UUID) (*CompletionResult, error)
	RecordDeliveryCompletion(ctx context.Context, input CompletionInput) (*CompletionResult, error)
}

// ServiceParams wires the delivery service. Commission is optional.
type ServiceParams struct {
	DB         txRunner
	Repo       Repository
	Earnings   earningRecorder
	Milestones milestoneRecorder
	Commission commissionRecorder
	Events     eventEmitter
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	db         txRunner
	repo       Repository
	earnings   earningRecorder
	milestones milestoneRecorder
	commission commissionRecorder
	events     eventEmitter
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the delivery completion service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Repo == nil:
		return nil, fmt.Errorf("delivery repository required")
	case p.Earnings == nil:
		return nil, fmt.Errorf("earnings recorder required")
	case p.Milestones == nil:
		return nil, fmt.Errorf("milestone recorder required")
	case p.Events == nil:
		return nil, fmt.Errorf("event emitter required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = db.UTCNow
	}
	return &service{
		db:         p.DB,
		repo:       p.Repo,
		earnings:   p.Earnings,
		milestones: p.Milestones,
		commission: p.Commission,
		events:     p.Events,
		logg:       p.Logger,
		now:        p.Now,
	}, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func assignedTo(order *models.Order, agentID uuid.UUID) bool {
	return order.AssignedAgentID != nil && *order.AssignedAgentID == agentID
}

func (s *service) MarkPickedUp(ctx context.Context, orderID, agentID uuid.UUID) (*CompletionResult, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !assignedTo(order, agentID) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not assigned to this agent").WithReason(pkgerrors.ReasonNotAssignedAgent)
	}
	if order.Status != enums.OrderStatusAssigned {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s", order.Status)).WithReason(pkgerrors.ReasonOrderStatus)
	}
	ok, err := s.repo.MarkInTransit(ctx, orderID, agentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order in transit")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently").WithReason(pkgerrors.ReasonOrderChanged)
	}
	return &CompletionResult{OrderID: orderID, AgentID: agentID, Outcome: OutcomeInTransit}, nil
}

// RecordDeliveryCompletion closes the order, frees the agent and records the
// earning. Milestones are fed on every call; the tracker counts each order
// once, so a retry after a failed milestone write still credits the agent.
func (s *service) RecordDeliveryCompletion(ctx context.Context, input CompletionInput) (*CompletionResult, error) {
	if input.OrderID == uuid.Nil || input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and agent are required")
	}
	if input.TipAmount != nil && input.TipAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip must not be negative")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !assignedTo(order, input.AgentID) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not assigned to this agent").WithReason(pkgerrors.ReasonNotAssignedAgent)
	}

	result := &CompletionResult{OrderID: order.ID, AgentID: input.AgentID, Outcome: OutcomeDelivered}
	switch order.Status {
	case enums.OrderStatusDelivered:
		result.Outcome = OutcomeAlreadyDelivered
	case enums.OrderStatusAssigned, enums.OrderStatusInTransit:
		now := s.now().UTC()
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.MarkDelivered(ctx, order.ID, input.AgentID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently").WithReason(pkgerrors.ReasonOrderChanged)
			}
			if err := repo.ReleaseAgent(ctx, input.AgentID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release agent")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		order.Status = enums.OrderStatusDelivered
		order.DeliveredAt = &now
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s", order.Status)).WithReason(pkgerrors.ReasonOrderStatus)
	}
	result.DeliveredAt = order.DeliveredAt

	tip := order.TipAmount
	if input.TipAmount != nil {
		tip = *input.TipAmount
	}
	deliveredAt := s.now().UTC()
	if order.DeliveredAt != nil {
		deliveredAt = order.DeliveredAt.UTC()
	}
	recorded, err := s.earnings.Record(ctx, earnings.RecordInput{
		OrderID:     order.ID,
		AgentID:     input.AgentID,
		MerchantID:  order.MerchantID,
		CityID:      order.CityID,
		DistanceKm:  distanceKm(order),
		Drop:        order.Drop(),
		Tip:         tip,
		Raining:     input.Raining,
		OnTime:      input.OnTime,
		DeliveredAt: deliveredAt,
	})
	if err != nil {
		return nil, err
	}
	result.Earning = recorded.Earning

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithAgentID(logCtx, input.AgentID.String())
	if recorded.Created {
		s.announce(logCtx, order.ID, input, recorded.Earning, deliveredAt)
	} else {
		s.logg.Info(logCtx, "delivery completion replayed, earning already recorded")
	}

	progress, err := s.milestones.RecordDelivery(ctx, milestones.DeliveryEvent{
		AgentID:  input.AgentID,
		OrderID:  order.ID,
		OnTime:   input.OnTime,
		Earnings: recorded.Earning.TotalEarning,
		At:       deliveredAt,
	})
	if err != nil {
		return nil, err
	}
	result.CompletedLevels = progress.CompletedLevels

	if recorded.Created {
		s.logg.Info(logCtx, "delivery completed")
	}
	return result, nil
}

// announce emits order.delivered and books the merchant commission. Both are
// best effort; failures are logged.
func (s *service) announce(ctx context.Context, orderID uuid.UUID, input CompletionInput, earning *models.AgentEarning, deliveredAt time.Time) {
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			OccurredAt:    deliveredAt,
			Data: payloads.OrderDeliveredEvent{
				OrderID:      orderID,
				AgentID:      input.AgentID,
				TotalEarning: earning.TotalEarning,
				OnTime:       input.OnTime,
				DeliveredAt:  deliveredAt,
			},
		})
	}); err != nil {
		s.logg.Error(ctx, "emit order delivered", err)
	}

	if s.commission != nil {
		if _, err := s.commission.RecordForOrder(ctx, orderID); err != nil {
			s.logg.Error(ctx, "record merchant commission", err)
		}
	}
}

// distanceKm prefers the supplied road distance over the straight line.
func distanceKm(order *models.Order) float64 {
	if order.DistanceKm != nil && *order.DistanceKm >= 0 {
		return *order.DistanceKm
	}
	return geo.HaversineKm(order.Pickup(), order.Drop())
}
