package milestones

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/dbtest"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	svc, err := NewService(ServiceParams{
		DB:     client,
		Repo:   NewRepository(conn),
		Events: outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Now:    func() time.Time { return time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc, conn
}

func createLadder(t *testing.T, svc Service) []*models.MilestoneReward {
	t.Helper()
	ctx := context.Background()
	first, err := svc.CreateReward(ctx, RewardInput{Level: 1, Name: "rookie", TotalDeliveries: 2, RewardAmount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	second, err := svc.CreateReward(ctx, RewardInput{
		Level:           2,
		Name:            "regular",
		TotalDeliveries: 1,
		TotalEarnings:   decimal.NewFromInt(100),
		RewardType:      "voucher",
		RewardPayload:   map[string]any{"code": "FUEL10"},
	})
	require.NoError(t, err)
	return []*models.MilestoneReward{first, second}
}

func deliver(t *testing.T, svc Service, agentID uuid.UUID, earn int64) *RecordResult {
	t.Helper()
	res, err := svc.RecordDelivery(context.Background(), DeliveryEvent{
		AgentID:  agentID,
		OrderID:  uuid.New(),
		OnTime:   true,
		Earnings: decimal.NewFromInt(earn),
	})
	require.NoError(t, err)
	return res
}

func countEvents(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestRecordDeliveryPersistsProgress(t *testing.T) {
	svc, conn := newTestService(t)
	ladder := createLadder(t, svc)
	agent := uuid.New()

	res := deliver(t, svc, agent, 60)
	assert.Empty(t, res.CompletedLevels)
	require.Len(t, res.Progress.Levels, 2)
	assert.Equal(t, enums.MilestoneInProgress, res.Progress.Levels[0].Status)
	assert.Equal(t, enums.MilestoneLocked, res.Progress.Levels[1].Status)

	res = deliver(t, svc, agent, 60)
	assert.Equal(t, []int{1}, res.CompletedLevels)
	assert.Equal(t, int64(1), countEvents(t, conn, enums.EventMilestoneCompleted))

	stored, err := svc.Progress(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	require.Len(t, stored.Levels, 2)
	assert.Equal(t, ladder[0].ID, stored.Levels[0].MilestoneID)
	assert.Equal(t, enums.MilestoneCompleted, stored.Levels[0].Status)
	assert.Equal(t, enums.MilestoneInProgress, stored.Levels[1].Status)
	assert.Equal(t, int64(0), stored.Levels[1].Counters.TotalDeliveries)
	assert.Equal(t, 2, stored.Levels[0].History.Len())
	assert.Equal(t, models.MilestoneHistoryCapacity, stored.Levels[0].History.Cap())
}

func TestClaimReward(t *testing.T) {
	svc, conn := newTestService(t)
	ladder := createLadder(t, svc)
	agent := uuid.New()
	ctx := context.Background()

	_, err := svc.ClaimReward(ctx, agent, ladder[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	deliver(t, svc, agent, 10)
	_, err = svc.ClaimReward(ctx, agent, ladder[0].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "in progress level cannot be claimed")
	_, err = svc.ClaimReward(ctx, agent, ladder[1].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "locked level cannot be claimed")

	deliver(t, svc, agent, 10)
	first, err := svc.ClaimReward(ctx, agent, ladder[0].ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyClaimed)
	assert.Equal(t, enums.MilestoneRewardClaimed, first.Status)
	assert.True(t, first.RewardAmount.Equal(decimal.NewFromInt(50)))
	require.NotNil(t, first.ClaimedAt)

	again, err := svc.ClaimReward(ctx, agent, ladder[0].ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyClaimed)
	assert.Equal(t, first.ClaimedAt.Unix(), again.ClaimedAt.Unix())
	assert.Equal(t, int64(1), countEvents(t, conn, enums.EventMilestoneRewardClaimed))

	// a claimed level still unlocks the next one
	deliver(t, svc, agent, 120)
	stored, err := svc.Progress(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, enums.MilestoneCompleted, stored.Levels[1].Status)
}

func TestRecordDeliveryCountsEachOrderOnce(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateReward(ctx, RewardInput{Level: 1, Name: "first drop", TotalDeliveries: 1})
	require.NoError(t, err)
	agent, order := uuid.New(), uuid.New()
	ev := DeliveryEvent{AgentID: agent, OrderID: order, OnTime: true, Earnings: decimal.NewFromInt(40)}

	first, err := svc.RecordDelivery(ctx, ev)
	require.NoError(t, err)
	assert.False(t, first.AlreadyCounted)
	assert.Equal(t, []int{1}, first.CompletedLevels)

	again, err := svc.RecordDelivery(ctx, ev)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCounted)
	assert.Empty(t, again.CompletedLevels)
	require.NotNil(t, again.Progress)
	assert.Equal(t, first.Progress.Version, again.Progress.Version)

	stored, err := svc.Progress(ctx, agent)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Levels[0].Counters.TotalDeliveries)
	assert.EqualValues(t, 1, countEvents(t, conn, enums.EventMilestoneCompleted))

	var credits int64
	require.NoError(t, conn.Model(&models.MilestoneDeliveryCredit{}).Where("order_id = ?", order).Count(&credits).Error)
	assert.EqualValues(t, 1, credits)
}

// Writers run serialized on the single-connection sqlite store.
func TestRecordDeliveryConcurrentWritersKeepEveryEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateReward(ctx, RewardInput{Level: 1, Name: "long haul", TotalDeliveries: 100})
	require.NoError(t, err)
	agent := uuid.New()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordDelivery(ctx, DeliveryEvent{AgentID: agent, OrderID: uuid.New(), Earnings: decimal.NewFromInt(5)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := svc.Progress(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), stored.Levels[0].Counters.TotalDeliveries)
	assert.True(t, stored.Levels[0].Counters.TotalEarnings.Equal(decimal.NewFromInt(5*writers)))
	assert.Equal(t, int64(writers-1), stored.Version)
}

func TestLateRewardIsAppended(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createLadder(t, svc)
	agent := uuid.New()
	deliver(t, svc, agent, 10)

	third, err := svc.CreateReward(ctx, RewardInput{Level: 3, Name: "veteran", OnTimeDeliveries: 10})
	require.NoError(t, err)

	res := deliver(t, svc, agent, 10)
	require.Len(t, res.Progress.Levels, 3)
	assert.Equal(t, third.ID, res.Progress.Levels[2].MilestoneID)
	assert.Equal(t, enums.MilestoneLocked, res.Progress.Levels[2].Status)
}

func TestCreateRewardRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createLadder(t, svc)

	_, err := svc.CreateReward(ctx, RewardInput{Level: 2, Name: "dup", TotalDeliveries: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.CreateReward(ctx, RewardInput{Level: 5, Name: "empty"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.CreateReward(ctx, RewardInput{Level: 0, Name: "zero", TotalDeliveries: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	rewards, err := svc.ListRewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, "cash", rewards[0].RewardType)
	assert.JSONEq(t, `{"code":"FUEL10"}`, string(rewards[1].RewardPayload))
}
