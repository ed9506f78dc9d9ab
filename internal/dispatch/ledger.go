package dispatch

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
)

// CanTransition reports whether a candidate may move from one status to
// another. Only pending entries move, and never back to pending.
func CanTransition(from, to enums.CandidateStatus) bool {
	if from != enums.CandidateStatusPending {
		return false
	}
	switch to {
	case enums.CandidateStatusAccepted, enums.CandidateStatusRejected, enums.CandidateStatusExpired:
		return true
	}
	return false
}

// ensureTransition wraps CanTransition with a StateError.
func ensureTransition(c models.AgentCandidate, to enums.CandidateStatus) error {
	if CanTransition(c.Status, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("offer is %s, cannot become %s", c.Status, to)).
		WithReason(pkgerrors.ReasonOfferNotPending).
		WithDetails(map[string]any{"candidate_id": c.ID, "status": c.Status})
}

// Ledger is a read view over one order's candidate entries.
type Ledger []models.AgentCandidate

// DeriveOrderState computes the dispatch-level state from the entries.
func (l Ledger) DeriveOrderState() enums.OrderStatus {
	hasPending := false
	for _, c := range l {
		switch c.Status {
		case enums.CandidateStatusAccepted:
			return enums.OrderStatusAssigned
		case enums.CandidateStatusPending:
			hasPending = true
		}
	}
	if hasPending {
		return enums.OrderStatusOffering
	}
	return enums.OrderStatusUnassigned
}

// Accepted returns the accepted entry, if any.
func (l Ledger) Accepted() (models.AgentCandidate, bool) {
	for _, c := range l {
		if c.Status == enums.CandidateStatusAccepted {
			return c, true
		}
	}
	return models.AgentCandidate{}, false
}

// Pending returns every pending entry in offer order.
func (l Ledger) Pending() []models.AgentCandidate {
	var out []models.AgentCandidate
	for _, c := range l.sorted() {
		if c.Status == enums.CandidateStatusPending {
			out = append(out, c)
		}
	}
	return out
}

// PendingFor returns the pending entry of agentID.
func (l Ledger) PendingFor(agentID uuid.UUID) (models.AgentCandidate, bool) {
	for _, c := range l.Pending() {
		if c.AgentID == agentID {
			return c, true
		}
	}
	return models.AgentCandidate{}, false
}

// Latest returns the most recent entry of agentID regardless of status.
func (l Ledger) Latest(agentID uuid.UUID) (models.AgentCandidate, bool) {
	var (
		found  models.AgentCandidate
		exists bool
	)
	for _, c := range l.sorted() {
		if c.AgentID == agentID {
			found, exists = c, true
		}
	}
	return found, exists
}

// OfferedAgents is the set of agents that already have an entry. They are
// never offered the same order again.
func (l Ledger) OfferedAgents() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(l))
	for _, c := range l {
		out[c.AgentID] = struct{}{}
	}
	return out
}

// NextSequence returns the ordinal for the next entry.
func (l Ledger) NextSequence() int {
	max := -1
	for _, c := range l {
		if c.Sequence > max {
			max = c.Sequence
		}
	}
	return max + 1
}

// Rounds returns the attempt numbers present, ascending.
func (l Ledger) Rounds() []int {
	seen := map[int]struct{}{}
	var rounds []int
	for _, c := range l {
		if _, ok := seen[c.Round]; ok {
			continue
		}
		seen[c.Round] = struct{}{}
		rounds = append(rounds, c.Round)
	}
	sort.Ints(rounds)
	return rounds
}

// RoundDeclined reports whether every entry of an attempt was rejected.
func (l Ledger) RoundDeclined(round int) bool {
	found := false
	for _, c := range l {
		if c.Round != round {
			continue
		}
		found = true
		if c.Status != enums.CandidateStatusRejected {
			return false
		}
	}
	return found
}

// First returns the earliest entry.
func (l Ledger) First() (models.AgentCandidate, bool) {
	sorted := l.sorted()
	if len(sorted) == 0 {
		return models.AgentCandidate{}, false
	}
	return sorted[0], true
}

// Validate checks the at-most-one-accepted invariant.
func (l Ledger) Validate() error {
	accepted := 0
	for _, c := range l {
		if c.Status == enums.CandidateStatusAccepted {
			accepted++
		}
	}
	if accepted > 1 {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("ledger has %d accepted entries", accepted))
	}
	return nil
}

func (l Ledger) sorted() []models.AgentCandidate {
	out := make([]models.AgentCandidate, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}
