package allocation

import (
	"testing"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
)

func TestDecodeKeepsDefaultsForMissingKeys(t *testing.T) {
	params, err := DefaultParams(enums.AllocationOneByOne)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	p := params.(*OneByOneParams)
	if err := Decode(map[string]any{"numberOfRetries": float64(5), "requestExpirySec": 45}, p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.NumberOfRetries != 5 || p.RequestExpirySec != 45 {
		t.Fatalf("bag not applied: %+v", p)
	}
	if p.RadiusKm != 5 || !p.ConsiderAgentRating {
		t.Fatalf("defaults lost: %+v", p)
	}
}

func TestDecodeNestedSettings(t *testing.T) {
	p := &FIFOParams{}
	defaults, _ := DefaultParams(enums.AllocationFIFO)
	*p = *defaults.(*FIFOParams)
	bag := map[string]any{
		"enableClubbing": true,
		"clubbingSettings": map[string]any{
			"pickupRadiusKm": 1.5,
			"timeWindowSec":  120,
		},
		"maximumRadiusKm": 12,
	}
	if err := Decode(bag, p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !p.EnableClubbing || p.ClubbingSettings.PickupRadiusKm != 1.5 || p.ClubbingSettings.TimeWindowSec != 120 {
		t.Fatalf("clubbing not decoded: %+v", p.ClubbingSettings)
	}
	if p.ClubbingSettings.DropRadiusKm != 2 {
		t.Fatalf("nested default lost: %+v", p.ClubbingSettings)
	}
	if p.MaximumRadiusKm != 12 {
		t.Fatalf("escalation not decoded: %+v", p.RadiusEscalation)
	}
}

func TestDecodeRejectsInvalidValues(t *testing.T) {
	cases := map[enums.AllocationMethod]map[string]any{
		enums.AllocationOneByOne:         {"requestExpirySec": 0},
		enums.AllocationSendToAll:        {"maxAgents": 0},
		enums.AllocationNearestAvailable: {"startRadiusKm": 10, "maximumRadiusKm": 5},
		enums.AllocationPooling:          {"poolingSettings": map[string]any{"pickupRadiusMeters": 0}},
		enums.AllocationRoundRobin:       {"radiusKm": "far"},
	}
	for method, bag := range cases {
		_, err := ResolveParameters(method, bag)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", method, err)
		}
	}
}

func TestResolveParametersReturnsCompleteBag(t *testing.T) {
	bag, err := ResolveParameters(enums.AllocationSendToAll, map[string]any{"maxAgents": 4})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if bag["maxAgents"] != float64(4) {
		t.Fatalf("unexpected maxAgents %v", bag["maxAgents"])
	}
	if bag["requestExpirySec"] != float64(30) {
		t.Fatalf("expected default expiry in resolved bag, got %v", bag["requestExpirySec"])
	}
	if _, ok := bag["Common"]; ok {
		t.Fatalf("embedded params must be flattened: %v", bag)
	}
}

func TestDefaultParamsRejectsManual(t *testing.T) {
	if _, err := DefaultParams(enums.AllocationManual); err == nil {
		t.Fatalf("expected error for manual method")
	}
}

func TestRadiusEscalation(t *testing.T) {
	r := RadiusEscalation{StartRadiusKm: 2, RadiusIncrementKm: 1.5, MaximumRadiusKm: 6}
	if got := r.RadiusForRound(0); got != 2 {
		t.Fatalf("round 0 radius %v", got)
	}
	if got := r.RadiusForRound(2); got != 5 {
		t.Fatalf("round 2 radius %v", got)
	}
	if got := r.RadiusForRound(9); got != 6 {
		t.Fatalf("radius must cap at maximum, got %v", got)
	}
	if got := r.Steps(); got != 4 {
		t.Fatalf("expected 4 steps, got %d", got)
	}
	if got := (RadiusEscalation{StartRadiusKm: 3, MaximumRadiusKm: 3}).Steps(); got != 1 {
		t.Fatalf("flat escalation steps %d", got)
	}
}

func TestCommonDurations(t *testing.T) {
	c := Common{RequestExpirySec: 30, AutoCancelOnFail: false, TimeForAutoCancelOnFailSec: 60}
	if c.RequestExpiry().Seconds() != 30 {
		t.Fatalf("unexpected expiry %v", c.RequestExpiry())
	}
	if c.AutoCancelAfter() != 0 {
		t.Fatalf("auto-cancel disabled must be zero")
	}
	c.AutoCancelOnFail = true
	if c.AutoCancelAfter().Seconds() != 60 {
		t.Fatalf("unexpected auto-cancel %v", c.AutoCancelAfter())
	}
}
