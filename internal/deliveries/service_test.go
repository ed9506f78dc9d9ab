package deliveries

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/internal/commission"
	"github.com/angelmondragon/courier-dispatch/internal/earnings"
	"github.com/angelmondragon/courier-dispatch/internal/milestones"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/db/dbtest"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
)

var completedAt = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

type fixture struct {
	svc        Service
	conn       *gorm.DB
	client     *db.Client
	earnings   earnings.Service
	milestones milestones.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	now := func() time.Time { return completedAt }
	events := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	earn, err := earnings.NewService(earnings.ServiceParams{
		Repo: earnings.NewRepository(conn),
		Now:  now,
	})
	require.NoError(t, err)
	_, err = earn.UpsertSetting(context.Background(), earnings.SettingInput{
		Scope:              enums.ScopeGlobal,
		BaseFee:            decimal.NewFromInt(20),
		BaseKm:             decimal.NewFromInt(2),
		PerKmFeeBeyondBase: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	ms, err := milestones.NewService(milestones.ServiceParams{
		DB:     client,
		Repo:   milestones.NewRepository(conn),
		Events: events,
		Now:    now,
	})
	require.NoError(t, err)
	_, err = ms.CreateReward(context.Background(), milestones.RewardInput{
		Level:           1,
		Name:            "first drop",
		TotalDeliveries: 1,
		RewardAmount:    decimal.NewFromInt(25),
	})
	require.NoError(t, err)

	comm, err := commission.NewService(commission.NewRepository(conn), nil)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:         client,
		Repo:       NewRepository(conn),
		Earnings:   earn,
		Milestones: ms,
		Commission: comm,
		Events:     events,
		Now:        now,
	})
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, client: client, earnings: earn, milestones: ms}
}

func seedAssigned(t *testing.T, conn *gorm.DB, distance float64) (*models.Order, *models.Agent) {
	t.Helper()
	agent := &models.Agent{Name: "rider", Status: enums.AgentStatusBusy, ActiveTasks: 1}
	require.NoError(t, conn.Create(agent).Error)
	order := &models.Order{
		MerchantID:      uuid.New(),
		Status:          enums.OrderStatusAssigned,
		AssignedAgentID: &agent.ID,
		PickupLat:       12.97,
		PickupLng:       77.59,
		DropLat:         12.99,
		DropLng:         77.61,
		DistanceKm:      &distance,
		SubtotalAmount:  decimal.NewFromInt(400),
		FinalAmount:     decimal.NewFromInt(420),
	}
	require.NoError(t, conn.Create(order).Error)
	return order, agent
}

func TestRecordDeliveryCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, agent := seedAssigned(t, f.conn, 5)

	res, err := f.svc.RecordDeliveryCompletion(ctx, CompletionInput{OrderID: order.ID, AgentID: agent.ID, OnTime: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	require.NotNil(t, res.Earning)
	assert.True(t, res.Earning.TotalEarning.Equal(decimal.NewFromInt(50)), res.Earning.TotalEarning.String())
	assert.Equal(t, []int{1}, res.CompletedLevels)

	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	require.NotNil(t, stored.DeliveredAt)

	var freed models.Agent
	require.NoError(t, f.conn.First(&freed, "id = ?", agent.ID).Error)
	assert.Equal(t, enums.AgentStatusAvailable, freed.Status)
	assert.Equal(t, 0, freed.ActiveTasks)
	assert.NotNil(t, freed.AvailableSince)

	var delivered int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderDelivered).Count(&delivered).Error)
	assert.EqualValues(t, 1, delivered)
}

func TestRecordDeliveryCompletionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, agent := seedAssigned(t, f.conn, 5)
	in := CompletionInput{OrderID: order.ID, AgentID: agent.ID, OnTime: true}

	first, err := f.svc.RecordDeliveryCompletion(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.RecordDeliveryCompletion(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyDelivered, second.Outcome)
	assert.Equal(t, first.Earning.ID, second.Earning.ID)
	assert.Empty(t, second.CompletedLevels)

	var count int64
	require.NoError(t, f.conn.Model(&models.AgentEarning{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	progress, err := f.milestones.Progress(ctx, agent.ID)
	require.NoError(t, err)
	require.NotEmpty(t, progress.Levels)
	assert.EqualValues(t, 1, progress.Levels[0].Counters.TotalDeliveries)
}

// flakyMilestones fails the first RecordDelivery and delegates afterwards.
type flakyMilestones struct {
	milestones.Service
	calls int
}

func (f *flakyMilestones) RecordDelivery(ctx context.Context, ev milestones.DeliveryEvent) (*milestones.RecordResult, error) {
	f.calls++
	if f.calls == 1 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "milestone store unavailable")
	}
	return f.Service.RecordDelivery(ctx, ev)
}

func TestRetriedCompletionCreditsMilestonesAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, agent := seedAssigned(t, f.conn, 5)

	flaky := &flakyMilestones{Service: f.milestones}
	svc, err := NewService(ServiceParams{
		DB:         f.client,
		Repo:       NewRepository(f.conn),
		Earnings:   f.earnings,
		Milestones: flaky,
		Events:     outbox.NewService(outbox.NewRepository(f.conn), logger.Nop()),
		Now:        func() time.Time { return completedAt },
	})
	require.NoError(t, err)

	in := CompletionInput{OrderID: order.ID, AgentID: agent.ID, OnTime: true}
	_, err = svc.RecordDeliveryCompletion(ctx, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)

	retry, err := svc.RecordDeliveryCompletion(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDelivered, retry.Outcome)
	assert.Equal(t, []int{1}, retry.CompletedLevels)

	again, err := svc.RecordDeliveryCompletion(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, again.CompletedLevels)
	assert.Equal(t, 3, flaky.calls)

	progress, err := f.milestones.Progress(ctx, agent.ID)
	require.NoError(t, err)
	require.NotEmpty(t, progress.Levels)
	assert.EqualValues(t, 1, progress.Levels[0].Counters.TotalDeliveries)

	var delivered int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderDelivered).Count(&delivered).Error)
	assert.EqualValues(t, 1, delivered)
}

func TestRecordDeliveryCompletionRejectsOtherAgent(t *testing.T) {
	f := newFixture(t)
	order, _ := seedAssigned(t, f.conn, 3)

	_, err := f.svc.RecordDeliveryCompletion(context.Background(), CompletionInput{OrderID: order.ID, AgentID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.RecordDeliveryCompletion(context.Background(), CompletionInput{OrderID: uuid.New(), AgentID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordDeliveryCompletionRejectsCanceledOrder(t *testing.T) {
	f := newFixture(t)
	order, agent := seedAssigned(t, f.conn, 3)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", enums.OrderStatusCanceled).Error)

	_, err := f.svc.RecordDeliveryCompletion(context.Background(), CompletionInput{OrderID: order.ID, AgentID: agent.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRecordDeliveryCompletionNegativeTip(t *testing.T) {
	f := newFixture(t)
	order, agent := seedAssigned(t, f.conn, 3)
	tip := decimal.NewFromInt(-1)

	_, err := f.svc.RecordDeliveryCompletion(context.Background(), CompletionInput{OrderID: order.ID, AgentID: agent.ID, TipAmount: &tip})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkPickedUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, agent := seedAssigned(t, f.conn, 3)

	res, err := f.svc.MarkPickedUp(ctx, order.ID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInTransit, res.Outcome)

	_, err = f.svc.MarkPickedUp(ctx, order.ID, agent.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	done, err := f.svc.RecordDeliveryCompletion(ctx, CompletionInput{OrderID: order.ID, AgentID: agent.ID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, done.Outcome)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
