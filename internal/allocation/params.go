package allocation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/validation"
)

// Common holds parameters every automatic method understands.
type Common struct {
	RequestExpirySec           int  `json:"requestExpirySec" validate:"gte=1,lte=3600"`
	ConsiderAgentRating        bool `json:"considerAgentRating"`
	AutoCancelOnFail           bool `json:"autoCancelOnFail"`
	TimeForAutoCancelOnFailSec int  `json:"timeForAutoCancelOnFailSec" validate:"gte=0"`
}

// RequestExpiry returns the offer lifetime.
func (c Common) RequestExpiry() time.Duration {
	return time.Duration(c.RequestExpirySec) * time.Second
}

// AutoCancelAfter returns the delay before an allocation-failed order is
// canceled, or zero when auto-cancel is off.
func (c Common) AutoCancelAfter() time.Duration {
	if !c.AutoCancelOnFail {
		return 0
	}
	return time.Duration(c.TimeForAutoCancelOnFailSec) * time.Second
}

type OneByOneParams struct {
	Common          `json:",squash"`
	RadiusKm        float64 `json:"radiusKm" validate:"gt=0"`
	NumberOfRetries int     `json:"numberOfRetries" validate:"gte=0,lte=50"`
}

type SendToAllParams struct {
	Common          `json:",squash"`
	RadiusKm        float64 `json:"radiusKm" validate:"gt=0"`
	MaxAgents       int     `json:"maxAgents" validate:"gte=1,lte=100"`
	NumberOfRetries int     `json:"numberOfRetries" validate:"gte=0,lte=50"`
}

type RoundRobinParams struct {
	Common                     `json:",squash"`
	RadiusKm                   float64 `json:"radiusKm" validate:"gt=0"`
	MaxTasksAllowed            int     `json:"maxTasksAllowed" validate:"gte=1"`
	SamePickupRadiusMeters     float64 `json:"samePickupRadiusMeters" validate:"gte=0"`
	RestartAllocationOnDecline bool    `json:"restartAllocationOnDecline"`
	NumberOfRetries            int     `json:"numberOfRetries" validate:"gte=0,lte=50"`
}

// RadiusEscalation grows the search radius each silent round.
type RadiusEscalation struct {
	StartRadiusKm     float64 `json:"startRadiusKm" validate:"gt=0"`
	RadiusIncrementKm float64 `json:"radiusIncrementKm" validate:"gte=0"`
	MaximumRadiusKm   float64 `json:"maximumRadiusKm" validate:"gtefield=StartRadiusKm"`
}

// RadiusForRound returns min(start + round*increment, maximum).
func (r RadiusEscalation) RadiusForRound(round int) float64 {
	radius := r.StartRadiusKm + float64(round)*r.RadiusIncrementKm
	if radius > r.MaximumRadiusKm {
		return r.MaximumRadiusKm
	}
	return radius
}

// Steps returns how many distinct radii the escalation produces.
func (r RadiusEscalation) Steps() int {
	if r.RadiusIncrementKm <= 0 || r.MaximumRadiusKm <= r.StartRadiusKm {
		return 1
	}
	return int(math.Ceil((r.MaximumRadiusKm-r.StartRadiusKm)/r.RadiusIncrementKm)) + 1
}

type NearestAvailableParams struct {
	Common           `json:",squash"`
	RadiusEscalation `json:",squash"`
	NumberOfRetries  int `json:"numberOfRetries" validate:"gte=0,lte=50"`
}

type ClubbingSettings struct {
	PickupRadiusKm float64 `json:"pickupRadiusKm" validate:"gte=0"`
	DropRadiusKm   float64 `json:"dropRadiusKm" validate:"gte=0"`
	TimeWindowSec  int     `json:"timeWindowSec" validate:"gte=0"`
}

type FIFOParams struct {
	Common            `json:",squash"`
	RadiusEscalation  `json:",squash"`
	MaximumBatchSize  int              `json:"maximumBatchSize" validate:"gte=1,lte=20"`
	MaximumBatchLimit int              `json:"maximumBatchLimit" validate:"gte=1,lte=20"`
	EnableClubbing    bool             `json:"enableClubbing"`
	ClubbingSettings  ClubbingSettings `json:"clubbingSettings"`
}

type PoolingSettings struct {
	PickupRadiusMeters float64 `json:"pickupRadiusMeters" validate:"gt=0"`
	TimeWindowSec      int     `json:"timeWindowSec" validate:"gte=0"`
	MaxOrdersPerPool   int     `json:"maxOrdersPerPool" validate:"gte=1,lte=20"`
}

type PoolingParams struct {
	Common          `json:",squash"`
	RadiusKm        float64         `json:"radiusKm" validate:"gt=0"`
	NumberOfRetries int             `json:"numberOfRetries" validate:"gte=0,lte=50"`
	PoolingSettings PoolingSettings `json:"poolingSettings"`
}

func defaultCommon() Common {
	return Common{
		RequestExpirySec:           30,
		ConsiderAgentRating:        true,
		AutoCancelOnFail:           false,
		TimeForAutoCancelOnFailSec: 600,
	}
}

func defaultEscalation() RadiusEscalation {
	return RadiusEscalation{StartRadiusKm: 2, RadiusIncrementKm: 1, MaximumRadiusKm: 8}
}

// DefaultParams returns a fresh parameter struct with defaults for method.
func DefaultParams(method enums.AllocationMethod) (any, error) {
	switch method {
	case enums.AllocationOneByOne:
		return &OneByOneParams{Common: defaultCommon(), RadiusKm: 5, NumberOfRetries: 3}, nil
	case enums.AllocationSendToAll:
		return &SendToAllParams{Common: defaultCommon(), RadiusKm: 5, MaxAgents: 10, NumberOfRetries: 1}, nil
	case enums.AllocationRoundRobin:
		return &RoundRobinParams{Common: defaultCommon(), RadiusKm: 5, MaxTasksAllowed: 2, SamePickupRadiusMeters: 300, NumberOfRetries: 3}, nil
	case enums.AllocationNearestAvailable:
		return &NearestAvailableParams{Common: defaultCommon(), RadiusEscalation: defaultEscalation(), NumberOfRetries: 6}, nil
	case enums.AllocationFIFO:
		return &FIFOParams{
			Common:            defaultCommon(),
			RadiusEscalation:  defaultEscalation(),
			MaximumBatchSize:  2,
			MaximumBatchLimit: 3,
			ClubbingSettings:  ClubbingSettings{PickupRadiusKm: 0.5, DropRadiusKm: 2, TimeWindowSec: 300},
		}, nil
	case enums.AllocationPooling:
		return &PoolingParams{
			Common:          defaultCommon(),
			RadiusKm:        5,
			NumberOfRetries: 3,
			PoolingSettings: PoolingSettings{PickupRadiusMeters: 300, TimeWindowSec: 600, MaxOrdersPerPool: 3},
		}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("method %q has no parameters", method))
}

// Decode fills out over the defaults already in out using json tags, then
// validates the result.
func Decode(bag map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Squash:  true,
		Result:  out,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build parameter decoder")
	}
	if err := dec.Decode(bag); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid allocation parameters").
			WithDetails(map[string]any{"error": err.Error()})
	}
	return validation.Struct(out)
}

// ResolveParameters decodes bag on top of the method defaults, validates it
// and returns the complete bag. The result is what gets frozen on an order.
func ResolveParameters(method enums.AllocationMethod, bag map[string]any) (map[string]any, error) {
	params, err := DefaultParams(method)
	if err != nil {
		return nil, err
	}
	if err := Decode(bag, params); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode parameters")
	}
	resolved := map[string]any{}
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode parameters")
	}
	return resolved, nil
}
