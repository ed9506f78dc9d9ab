package milestones

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/payloads"
	"github.com/angelmondragon/courier-dispatch/pkg/validation"
)

// maxWriteAttempts bounds the optimistic retry loop on progress rows.
const maxWriteAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service tracks per-agent milestone progress.
type Service interface {
	RecordDelivery(ctx context.Context, ev DeliveryEvent) (*RecordResult, error)
	ClaimReward(ctx context.Context, agentID, milestoneID uuid.UUID) (*ClaimResult, error)
	Progress(ctx context.Context, agentID uuid.UUID) (*models.AgentMilestoneProgress, error)
	CreateReward(ctx context.Context, input RewardInput) (*models.MilestoneReward, error)
	ListRewards(ctx context.Context) ([]models.MilestoneReward, error)
}

// RecordResult is the progress after one delivery. AlreadyCounted marks an
// order that was credited by an earlier call and changed nothing.
type RecordResult struct {
	Progress        *models.AgentMilestoneProgress `json:"progress"`
	CompletedLevels []int                          `json:"completedLevels"`
	AlreadyCounted  bool                           `json:"alreadyCounted"`
}

// ClaimResult reports a reward claim. AlreadyClaimed marks a repeated claim
// that changed nothing.
type ClaimResult struct {
	MilestoneID    uuid.UUID             `json:"milestoneId"`
	Level          int                   `json:"level"`
	Status         enums.MilestoneStatus `json:"status"`
	AlreadyClaimed bool                  `json:"alreadyClaimed"`
	ClaimedAt      *time.Time            `json:"claimedAt,omitempty"`
	RewardType     string                `json:"rewardType"`
	RewardAmount   decimal.Decimal       `json:"rewardAmount"`
}

// RewardInput creates the next level of the ladder.
type RewardInput struct {
	Level            int             `json:"level" validate:"required,min=1"`
	Name             string          `json:"name" validate:"required"`
	TotalDeliveries  int64           `json:"totalDeliveries" validate:"gte=0"`
	OnTimeDeliveries int64           `json:"onTimeDeliveries" validate:"gte=0"`
	TotalEarnings    decimal.Decimal `json:"totalEarnings" validate:"gte=0"`
	RewardType       string          `json:"rewardType"`
	RewardAmount     decimal.Decimal `json:"rewardAmount" validate:"gte=0"`
	RewardPayload    map[string]any  `json:"rewardPayload"`
}

// ServiceParams wires the milestone service.
type ServiceParams struct {
	DB     txRunner
	Repo   Repository
	Events eventEmitter
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	db     txRunner
	repo   Repository
	events eventEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the milestone tracker.
func NewService(p ServiceParams) (Service, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("milestone repository required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = db.UTCNow
	}
	return &service{db: p.DB, repo: p.Repo, events: p.Events, logg: p.Logger, now: p.Now}, nil
}

var (
	errStaleVersion    = errors.New("milestone progress changed concurrently")
	errAlreadyCredited = errors.New("delivery already counted")
)

// mutate runs fn against the agent's current progress and writes the result
// with a version check, reloading and retrying when another writer won.
func (s *service) mutate(ctx context.Context, agentID uuid.UUID, create bool, fn func(tx *gorm.DB, p *models.AgentMilestoneProgress) error) (*models.AgentMilestoneProgress, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		var out *models.AgentMilestoneProgress
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			progress, err := repo.FindProgress(ctx, agentID)
			isNew := false
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound) && create:
				progress = &models.AgentMilestoneProgress{AgentID: agentID}
				isNew = true
			case errors.Is(err, gorm.ErrRecordNotFound):
				return pkgerrors.New(pkgerrors.CodeNotFound, "milestone progress not found")
			case err != nil:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone progress")
			}

			if err := fn(tx, progress); err != nil {
				return err
			}

			if isNew {
				if err := repo.CreateProgress(ctx, progress); err != nil {
					if db.IsUniqueViolation(err, "") {
						return errStaleVersion
					}
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create milestone progress")
				}
			} else {
				ok, err := repo.UpdateProgress(ctx, progress, progress.Version)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save milestone progress")
				}
				if !ok {
					return errStaleVersion
				}
			}
			out = progress
			return nil
		})
		if errors.Is(err, errStaleVersion) {
			logCtx := s.logg.WithFields(ctx, map[string]any{"agent_id": agentID.String(), "attempt": attempt})
			s.logg.Warn(logCtx, "milestone progress write lost a race, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "milestone progress is being updated concurrently")
}

func (s *service) RecordDelivery(ctx context.Context, ev DeliveryEvent) (*RecordResult, error) {
	if ev.AgentID == uuid.Nil || ev.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent and order are required")
	}
	if ev.Earnings.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "earnings must not be negative")
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	ev.At = ev.At.UTC()

	all, err := s.repo.ListRewards(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone rewards")
	}
	byID := make(map[uuid.UUID]models.MilestoneReward, len(all))
	active := make([]models.MilestoneReward, 0, len(all))
	for _, r := range all {
		byID[r.ID] = r
		if r.IsActive {
			active = append(active, r)
		}
	}

	var completed []int
	progress, err := s.mutate(ctx, ev.AgentID, true, func(tx *gorm.DB, p *models.AgentMilestoneProgress) error {
		fresh, err := s.repo.WithTx(tx).CreditDelivery(ctx, &models.MilestoneDeliveryCredit{
			OrderID:    ev.OrderID,
			AgentID:    ev.AgentID,
			CreditedAt: ev.At,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit delivery")
		}
		if !fresh {
			return errAlreadyCredited
		}

		p.Levels = syncLevels(p.Levels, active)
		idx := apply(p.Levels, byID, ev)

		completed = completed[:0]
		for _, i := range idx {
			lvl := p.Levels[i]
			completed = append(completed, lvl.Level)
			reward := byID[lvl.MilestoneID]
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventMilestoneCompleted,
				AggregateType: enums.AggregateMilestone,
				AggregateID:   lvl.MilestoneID,
				OccurredAt:    ev.At,
				Data: payloads.MilestoneEvent{
					AgentID:      ev.AgentID,
					MilestoneID:  lvl.MilestoneID,
					Level:        lvl.Level,
					RewardType:   reward.RewardType,
					RewardAmount: reward.RewardAmount,
					At:           ev.At,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit milestone completed")
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyCredited) {
		return s.counted(ctx, ev)
	}
	if err != nil {
		return nil, err
	}

	if len(completed) > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"agent_id": ev.AgentID.String(),
			"order_id": ev.OrderID.String(),
			"levels":   completed,
		})
		s.logg.Info(logCtx, "milestone levels completed")
	}
	return &RecordResult{Progress: progress, CompletedLevels: completed}, nil
}

// counted answers a repeated delivery with the agent's stored progress.
func (s *service) counted(ctx context.Context, ev DeliveryEvent) (*RecordResult, error) {
	progress, err := s.repo.FindProgress(ctx, ev.AgentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone progress")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agent_id": ev.AgentID.String(),
		"order_id": ev.OrderID.String(),
	}), "delivery already counted toward milestones")
	return &RecordResult{Progress: progress, CompletedLevels: []int{}, AlreadyCounted: true}, nil
}

func (s *service) ClaimReward(ctx context.Context, agentID, milestoneID uuid.UUID) (*ClaimResult, error) {
	var result *ClaimResult
	_, err := s.mutate(ctx, agentID, false, func(tx *gorm.DB, p *models.AgentMilestoneProgress) error {
		idx := -1
		for i := range p.Levels {
			if p.Levels[i].MilestoneID == milestoneID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "milestone not tracked for agent")
		}
		lvl := &p.Levels[idx]
		result = &ClaimResult{MilestoneID: milestoneID, Level: lvl.Level}

		switch lvl.Status {
		case enums.MilestoneRewardClaimed:
			result.Status = lvl.Status
			result.AlreadyClaimed = true
			result.ClaimedAt = lvl.ClaimedAt
			return errAlreadyClaimed
		case enums.MilestoneCompleted:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "milestone is not completed").
				WithReason(pkgerrors.ReasonMilestoneLocked).
				WithDetails(map[string]any{"status": lvl.Status, "level": lvl.Level})
		}

		var reward models.MilestoneReward
		if err := tx.WithContext(ctx).Where("id = ?", milestoneID).First(&reward).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone reward")
		}
		now := s.now().UTC()
		lvl.Status = enums.MilestoneRewardClaimed
		lvl.ClaimedAt = &now
		result.Status = lvl.Status
		result.ClaimedAt = &now
		result.RewardType = reward.RewardType
		result.RewardAmount = reward.RewardAmount

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMilestoneRewardClaimed,
			AggregateType: enums.AggregateMilestone,
			AggregateID:   milestoneID,
			OccurredAt:    now,
			Data: payloads.MilestoneEvent{
				AgentID:      agentID,
				MilestoneID:  milestoneID,
				Level:        lvl.Level,
				RewardType:   reward.RewardType,
				RewardAmount: reward.RewardAmount,
				At:           now,
			},
		})
	})
	if errors.Is(err, errAlreadyClaimed) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"agent_id":     agentID.String(),
		"milestone_id": milestoneID.String(),
		"level":        result.Level,
	})
	s.logg.Info(logCtx, "milestone reward claimed")
	return result, nil
}

// errAlreadyClaimed rolls back the claim transaction without writing.
var errAlreadyClaimed = errors.New("milestone reward already claimed")

func (s *service) Progress(ctx context.Context, agentID uuid.UUID) (*models.AgentMilestoneProgress, error) {
	progress, err := s.repo.FindProgress(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "milestone progress not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone progress")
	}
	return progress, nil
}

// CreateReward appends a level to the ladder. Levels only grow so existing
// progress never gains a locked level below a completed one.
func (s *service) CreateReward(ctx context.Context, input RewardInput) (*models.MilestoneReward, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.TotalDeliveries == 0 && input.OnTimeDeliveries == 0 && input.TotalEarnings.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one target is required")
	}
	top, err := s.repo.MaxLevel(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone levels")
	}
	if input.Level <= top {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("level must be greater than %d", top))
	}

	reward := &models.MilestoneReward{
		Level: input.Level,
		Name:  input.Name,
		Conditions: models.MilestoneConditions{
			TotalDeliveries:  input.TotalDeliveries,
			OnTimeDeliveries: input.OnTimeDeliveries,
			TotalEarnings:    input.TotalEarnings,
		},
		RewardType:   input.RewardType,
		RewardAmount: input.RewardAmount,
		IsActive:     true,
	}
	if reward.RewardType == "" {
		reward.RewardType = "cash"
	}
	if input.RewardPayload != nil {
		raw, err := json.Marshal(input.RewardPayload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reward payload")
		}
		reward.RewardPayload = datatypes.JSON(raw)
	}
	if err := s.repo.CreateReward(ctx, reward); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "milestone level already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create milestone reward")
	}
	return reward, nil
}

func (s *service) ListRewards(ctx context.Context) ([]models.MilestoneReward, error) {
	rewards, err := s.repo.ListRewards(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list milestone rewards")
	}
	return rewards, nil
}
