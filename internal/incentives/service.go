package incentives

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/payloads"
	"github.com/angelmondragon/courier-dispatch/pkg/pagination"
	"github.com/angelmondragon/courier-dispatch/pkg/validation"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs incentive batches and manages plans.
type Service interface {
	RunBatch(ctx context.Context, asOf time.Time) (*BatchResult, error)
	CreatePlan(ctx context.Context, input PlanInput) (*models.IncentivePlan, error)
	ListPlans(ctx context.Context) ([]models.IncentivePlan, error)
	ListEarnings(ctx context.Context, filter EarningFilter, params pagination.Params) (*pagination.Page[models.AgentIncentiveEarning], error)
}

// BatchResult summarizes one run.
type BatchResult struct {
	AsOf        time.Time    `json:"asOf"`
	Plans       []PlanResult `json:"plans"`
	RowsWritten int          `json:"rowsWritten"`
	RowsPaid    int          `json:"rowsSkippedPaid"`
}

// PlanResult is the per-plan part of a batch.
type PlanResult struct {
	PlanID      uuid.UUID `json:"planId"`
	Period      string    `json:"period"`
	Agents      int       `json:"agents"`
	RowsWritten int       `json:"rowsWritten"`
	RowsPaid    int       `json:"rowsSkippedPaid"`
}

// ConditionInput is one threshold of a new plan.
type ConditionInput struct {
	Metric          enums.IncentiveMetric `json:"metric" validate:"required"`
	Comparator      enums.Comparator      `json:"comparator" validate:"required"`
	Threshold       decimal.Decimal       `json:"threshold" validate:"gte=0"`
	IncentiveAmount decimal.Decimal       `json:"incentiveAmount" validate:"gte=0"`
}

// PlanInput creates an incentive plan.
type PlanInput struct {
	Name            string                  `json:"name" validate:"required"`
	PlanType        enums.IncentivePlanType `json:"planType" validate:"required"`
	Conditions      []ConditionInput        `json:"conditions" validate:"required,min=1,dive"`
	IncentiveAmount decimal.Decimal         `json:"incentiveAmount" validate:"gte=0"`
	CityID          *uuid.UUID              `json:"cityId"`
	ValidFrom       time.Time               `json:"validFrom" validate:"required"`
	ValidTo         *time.Time              `json:"validTo"`
}

// ServiceParams wires the incentive service.
type ServiceParams struct {
	DB       txRunner
	Repo     Repository
	Events   eventEmitter
	Location *time.Location
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	db       txRunner
	repo     Repository
	events   eventEmitter
	location *time.Location
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the incentive service.
func NewService(p ServiceParams) (Service, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("incentive repository required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = db.UTCNow
	}
	return &service{
		db:       p.DB,
		repo:     p.Repo,
		events:   p.Events,
		location: p.Location,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

// RunBatch recomputes the incentive of every agent for every plan valid at
// asOf. Each plan is written in its own transaction; a failing plan does not
// stop the others and the errors are returned together.
func (s *service) RunBatch(ctx context.Context, asOf time.Time) (*BatchResult, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = asOf.UTC()

	plans, err := s.repo.ActivePlans(ctx, asOf)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load incentive plans")
	}

	result := &BatchResult{AsOf: asOf, Plans: make([]PlanResult, 0, len(plans))}
	var errs error
	for _, plan := range plans {
		pr, err := s.runPlan(ctx, plan, asOf)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("plan %s: %w", plan.ID, err))
			continue
		}
		result.Plans = append(result.Plans, *pr)
		result.RowsWritten += pr.RowsWritten
		result.RowsPaid += pr.RowsPaid
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"as_of":        asOf.Format(time.RFC3339),
		"plans":        len(plans),
		"rows_written": result.RowsWritten,
		"rows_paid":    result.RowsPaid,
	})
	if errs != nil {
		s.logg.Error(logCtx, "incentive batch finished with errors", errs)
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "incentive batch incomplete")
	}
	s.logg.Info(logCtx, "incentive batch finished")
	return result, nil
}

func (s *service) runPlan(ctx context.Context, plan models.IncentivePlan, asOf time.Time) (*PlanResult, error) {
	period, err := PeriodFor(plan.PlanType, asOf, s.location)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.AggregateEarnings(ctx, period.Start.UTC(), period.End.UTC(), plan.CityID)
	if err != nil {
		return nil, err
	}

	pr := &PlanResult{PlanID: plan.ID, Period: period.Identifier, Agents: len(totals)}
	computedAt := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, t := range totals {
			amount := Evaluate(plan, t)
			row := &models.AgentIncentiveEarning{
				AgentID:          t.AgentID,
				PlanID:           plan.ID,
				PeriodIdentifier: period.Identifier,
				PeriodStart:      period.Start.UTC(),
				PeriodEnd:        period.End.UTC(),
				EarningsInWindow: t.Earnings,
				DeliveryCount:    t.Deliveries,
				IncentiveAmount:  amount,
				PayoutStatus:     enums.PayoutStatusPending,
				ComputedAt:       computedAt,
			}
			written, err := repo.UpsertUnpaid(ctx, row)
			if err != nil {
				return err
			}
			if !written {
				pr.RowsPaid++
				continue
			}
			pr.RowsWritten++
			if amount.IsZero() {
				continue
			}
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventIncentiveComputed,
				AggregateType: enums.AggregateIncentive,
				AggregateID:   plan.ID,
				Data: payloads.IncentiveComputedEvent{
					AgentID:          t.AgentID,
					PlanID:           plan.ID,
					PeriodIdentifier: period.Identifier,
					IncentiveAmount:  amount,
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// Evaluate adds up the amounts of every condition the totals satisfy. A
// condition without its own amount pays the plan amount.
func Evaluate(plan models.IncentivePlan, t AgentTotals) decimal.Decimal {
	total := decimal.Zero
	for _, c := range plan.Conditions {
		value := t.Earnings
		if c.Metric == enums.MetricDeliveries {
			value = decimal.NewFromInt(t.Deliveries)
		}
		if !compare(value, c.Comparator, c.Threshold) {
			continue
		}
		amount := c.IncentiveAmount
		if amount.IsZero() {
			amount = plan.IncentiveAmount
		}
		total = total.Add(amount)
	}
	return total
}

func compare(value decimal.Decimal, cmp enums.Comparator, threshold decimal.Decimal) bool {
	switch cmp {
	case enums.ComparatorGT:
		return value.GreaterThan(threshold)
	case enums.ComparatorGTE:
		return value.GreaterThanOrEqual(threshold)
	case enums.ComparatorLT:
		return value.LessThan(threshold)
	case enums.ComparatorLTE:
		return value.LessThanOrEqual(threshold)
	case enums.ComparatorEQ:
		return value.Equal(threshold)
	}
	return false
}

func (s *service) CreatePlan(ctx context.Context, input PlanInput) (*models.IncentivePlan, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	details := map[string]string{}
	if !input.PlanType.IsValid() {
		details["planType"] = "is invalid"
	}
	for i, c := range input.Conditions {
		if !c.Metric.IsValid() {
			details[fmt.Sprintf("conditions[%d].metric", i)] = "is invalid"
		}
		if !c.Comparator.IsValid() {
			details[fmt.Sprintf("conditions[%d].comparator", i)] = "is invalid"
		}
	}
	if input.ValidTo != nil && input.ValidTo.Before(input.ValidFrom) {
		details["validTo"] = "must not be before validFrom"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid incentive plan").WithDetails(details)
	}

	plan := &models.IncentivePlan{
		Name:            input.Name,
		PlanType:        input.PlanType,
		IncentiveAmount: input.IncentiveAmount,
		CityID:          input.CityID,
		ValidFrom:       input.ValidFrom.UTC(),
		IsActive:        true,
	}
	if input.ValidTo != nil {
		to := input.ValidTo.UTC()
		plan.ValidTo = &to
	}
	for _, c := range input.Conditions {
		plan.Conditions = append(plan.Conditions, models.IncentiveCondition{
			Metric:          c.Metric,
			Comparator:      c.Comparator,
			Threshold:       c.Threshold,
			IncentiveAmount: c.IncentiveAmount,
		})
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create incentive plan")
	}
	return plan, nil
}

func (s *service) ListPlans(ctx context.Context) ([]models.IncentivePlan, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list incentive plans")
	}
	return plans, nil
}

func (s *service) ListEarnings(ctx context.Context, filter EarningFilter, params pagination.Params) (*pagination.Page[models.AgentIncentiveEarning], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListEarnings(ctx, filter, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list incentive earnings")
	}
	page := pagination.Build(rows, params.Limit, func(e models.AgentIncentiveEarning) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &page, nil
}
