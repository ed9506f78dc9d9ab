package commission

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/pkg/db/dbtest"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)
	return svc, conn
}

func percentage(scope enums.SettingScope, ref *uuid.UUID, value string) SettingInput {
	return SettingInput{
		Scope:          scope,
		ScopeRefID:     ref,
		CommissionType: enums.CommissionTypePercentage,
		Value:          dec(value),
		Base:           enums.CommissionBaseSubtotal,
	}
}

func TestUpsertSettingRejectsPercentageAboveHundred(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertSetting(ctx, percentage(enums.ScopeGlobal, nil, "100.5"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Contains(t, typed.Details(), "value")

	_, err = svc.UpsertSetting(ctx, percentage(enums.ScopeGlobal, nil, "-1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpsertSetting(ctx, percentage(enums.ScopeGlobal, nil, "100"))
	assert.NoError(t, err)

	flat := percentage(enums.ScopeCity, ptr(uuid.New()), "250")
	flat.CommissionType = enums.CommissionTypeFlat
	_, err = svc.UpsertSetting(ctx, flat)
	assert.NoError(t, err, "flat amounts are not bounded by 100")
}

func TestUpsertSettingScopeRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertSetting(ctx, percentage(enums.ScopeMerchant, nil, "5"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpsertSetting(ctx, percentage(enums.ScopeGlobal, ptr(uuid.New()), "5"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bad := percentage(enums.ScopeGlobal, nil, "5")
	bad.Base = enums.CommissionBase("gross")
	_, err = svc.UpsertSetting(ctx, bad)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	noBase := percentage(enums.ScopeGlobal, nil, "5")
	noBase.Base = ""
	setting, err := svc.UpsertSetting(ctx, noBase)
	require.NoError(t, err)
	assert.Equal(t, enums.CommissionBaseSubtotal, setting.Base)
}

func TestResolvePriority(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	merchant, city := uuid.New(), uuid.New()

	_, err := svc.Resolve(ctx, merchant, &city)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	global, err := svc.UpsertSetting(ctx, percentage(enums.ScopeGlobal, nil, "10"))
	require.NoError(t, err)
	cityRow, err := svc.UpsertSetting(ctx, percentage(enums.ScopeCity, &city, "12"))
	require.NoError(t, err)
	merchantRow, err := svc.UpsertSetting(ctx, percentage(enums.ScopeMerchant, &merchant, "8"))
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, merchant, &city)
	require.NoError(t, err)
	assert.Equal(t, merchantRow.ID, got.ID)

	got, err = svc.Resolve(ctx, uuid.New(), &city)
	require.NoError(t, err)
	assert.Equal(t, cityRow.ID, got.ID)

	got, err = svc.Resolve(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, global.ID, got.ID)
}

func TestRecordForOrderIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertSetting(ctx, percentage(enums.ScopeGlobal, nil, "10"))
	require.NoError(t, err)

	order := models.Order{
		MerchantID:     uuid.New(),
		Status:         enums.OrderStatusDelivered,
		SubtotalAmount: dec("200"),
		TaxAmount:      dec("10"),
		FinalAmount:    dec("230"),
	}
	require.NoError(t, conn.Create(&order).Error)

	first, err := svc.RecordForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.Earning.CommissionAmount.Equal(dec("20")))
	assert.True(t, first.Earning.MerchantNetEarning.Equal(dec("210")))

	// a later rate change does not touch the recorded split
	_, err = svc.UpsertSetting(ctx, percentage(enums.ScopeGlobal, nil, "30"))
	require.NoError(t, err)

	second, err := svc.RecordForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Earning.ID, second.Earning.ID)
	assert.True(t, second.Earning.CommissionAmount.Equal(dec("20")))

	_, err = svc.RecordForOrder(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func ptr[T any](v T) *T { return &v }
