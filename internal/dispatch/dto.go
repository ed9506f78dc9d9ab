package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

// Outcome is the machine-readable result of a dispatch operation.
type Outcome string

const (
	OutcomeOffered          Outcome = "offered"
	OutcomeManualRequired   Outcome = "manual_required"
	OutcomeAllocationFailed Outcome = "allocation_failed"
	OutcomeAssigned         Outcome = "assigned"
	OutcomeRejected         Outcome = "rejected"
	OutcomeExpired          Outcome = "expired"
	OutcomeCanceled         Outcome = "canceled"
	OutcomeNoop             Outcome = "noop"
)

// Failure reasons recorded on allocation_failed orders.
const (
	ReasonNoCandidates        = "no_candidates"
	ReasonCandidatesExhausted = "candidates_exhausted"
)

// Withdrawal reasons sent with offer_withdrawn notifications.
const (
	withdrawAssignedElsewhere = "assigned_elsewhere"
	withdrawExpired           = "expired"
	withdrawManual            = "manually_assigned"
)

type DispatchResult struct {
	OrderID       uuid.UUID              `json:"orderId"`
	Outcome       Outcome                `json:"outcome"`
	Method        enums.AllocationMethod `json:"method,omitempty"`
	Round         int                    `json:"round"`
	OfferedAgents []uuid.UUID            `json:"offeredAgents,omitempty"`
	BatchOrderIDs []uuid.UUID            `json:"batchOrderIds,omitempty"`
	ExpiresAt     *time.Time             `json:"expiresAt,omitempty"`
	FailureReason string                 `json:"failureReason,omitempty"`
	AutoCancelAt  *time.Time             `json:"autoCancelAt,omitempty"`
}

type RespondInput struct {
	OrderID  uuid.UUID           `json:"orderId" validate:"required"`
	AgentID  uuid.UUID           `json:"agentId" validate:"required"`
	Decision enums.OfferDecision `json:"decision" validate:"required,oneof=accept reject"`
}

// OfferResponse reports what an agent's answer did. Next is set when a
// rejection moved dispatch to another round.
type OfferResponse struct {
	OrderID  uuid.UUID           `json:"orderId"`
	AgentID  uuid.UUID           `json:"agentId"`
	Decision enums.OfferDecision `json:"decision"`
	Outcome  Outcome             `json:"outcome"`
	Orders   []uuid.UUID         `json:"orders,omitempty"`
	Next     *DispatchResult     `json:"next,omitempty"`
}

type AssignResult struct {
	OrderID         uuid.UUID   `json:"orderId"`
	AgentID         uuid.UUID   `json:"agentId"`
	Outcome         Outcome     `json:"outcome"`
	AssignedAt      time.Time   `json:"assignedAt"`
	WithdrawnAgents []uuid.UUID `json:"withdrawnAgents,omitempty"`
}
