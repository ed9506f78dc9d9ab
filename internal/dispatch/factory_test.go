package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
)

func TestDefaultRegistryBuildsEveryAutomaticMethod(t *testing.T) {
	reg := DefaultRegistry()
	for _, method := range []enums.AllocationMethod{
		enums.AllocationOneByOne,
		enums.AllocationSendToAll,
		enums.AllocationRoundRobin,
		enums.AllocationNearestAvailable,
		enums.AllocationFIFO,
		enums.AllocationPooling,
	} {
		s, err := reg.Create(models.AllocationSnapshot{Method: method, Parameters: map[string]any{}})
		require.NoError(t, err, method)
		assert.Equal(t, method, s.Method())
		assert.GreaterOrEqual(t, s.MaxRounds(), 1, method)
		assert.GreaterOrEqual(t, s.Capacity(), 1, method)
	}
}

func TestRegistryRejectsManualAndUnknown(t *testing.T) {
	reg := DefaultRegistry()
	_, err := reg.Create(models.AllocationSnapshot{Method: enums.AllocationManual})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = reg.Create(models.AllocationSnapshot{Method: "teleport"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRegistryDecodesFrozenParameters(t *testing.T) {
	s, err := DefaultRegistry().Create(models.AllocationSnapshot{
		Method:     enums.AllocationOneByOne,
		Parameters: map[string]any{"numberOfRetries": float64(5), "requestExpirySec": float64(45)},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, s.MaxRounds())
	assert.Equal(t, 45, s.Common().RequestExpirySec)
}

func TestRegistryRejectsInvalidParameters(t *testing.T) {
	_, err := DefaultRegistry().Create(models.AllocationSnapshot{
		Method:     enums.AllocationSendToAll,
		Parameters: map[string]any{"maxAgents": 0},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRegisterRefusesDuplicates(t *testing.T) {
	reg := NewRegistry()
	f := factoryFor(enums.AllocationOneByOne, newOneByOne)
	require.NoError(t, reg.Register(enums.AllocationOneByOne, f))
	assert.Error(t, reg.Register(enums.AllocationOneByOne, f))
	assert.Error(t, reg.Register(enums.AllocationFIFO, nil))
}
