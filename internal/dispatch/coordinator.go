package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/db"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/geo"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
	"github.com/angelmondragon/courier-dispatch/pkg/metrics"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox"
	"github.com/angelmondragon/courier-dispatch/pkg/outbox/payloads"
)

// SettingsSource captures the allocation settings in force at a moment.
type SettingsSource interface {
	Snapshot(ctx context.Context, at time.Time) (*allocation.Snapshot, error)
}

type CoordinatorParams struct {
	DB        txRunner
	Repo      Repository
	Settings  SettingsSource
	Registry  *Registry
	Directory AgentDirectory
	Distance  DistanceProvider
	Notifier  Notifier
	Events    EventEmitter
	Scheduler Scheduler
	Metrics   *metrics.DispatchMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Coordinator drives orders through candidate rounds until an agent accepts
// or the strategy gives up.
type Coordinator struct {
	db        txRunner
	repo      Repository
	settings  SettingsSource
	registry  *Registry
	directory AgentDirectory
	distance  DistanceProvider
	notifier  Notifier
	events    EventEmitter
	scheduler Scheduler
	metrics   *metrics.DispatchMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewCoordinator(p CoordinatorParams) (*Coordinator, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if p.Settings == nil {
		return nil, fmt.Errorf("settings source required")
	}
	if p.Directory == nil {
		return nil, fmt.Errorf("agent directory required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	c := &Coordinator{
		db:        p.DB,
		repo:      p.Repo,
		settings:  p.Settings,
		registry:  p.Registry,
		directory: p.Directory,
		distance:  p.Distance,
		notifier:  p.Notifier,
		events:    p.Events,
		scheduler: p.Scheduler,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}
	if c.registry == nil {
		c.registry = DefaultRegistry()
	}
	if c.distance == nil {
		c.distance = StraightLine{}
	}
	if c.notifier == nil {
		c.notifier = NewOutboxNotifier(p.DB, p.Events)
	}
	if c.scheduler == nil {
		c.scheduler = NewTimerScheduler()
	}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c, nil
}

// DispatchOrder freezes the current allocation settings on an unassigned
// order and runs its first round.
func (c *Coordinator) DispatchOrder(ctx context.Context, orderID uuid.UUID) (*DispatchResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = c.logg.WithOrderID(ctx, orderID.String())

	order, err := c.loadOrder(ctx, c.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusUnassigned || order.AssignedAgentID != nil || order.BatchID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order is %s", order.Status)).WithReason(pkgerrors.ReasonOrderStatus)
	}

	snap, err := c.settings.Snapshot(ctx, c.now())
	if err != nil {
		return nil, err
	}

	if !snap.AutoAllocationEnabled || !snap.Frozen.Method.IsAutomatic() {
		frozen := snap.Frozen
		frozen.Method = enums.AllocationManual
		frozen.Parameters = map[string]any{}
		ok, err := c.repo.StartDispatch(ctx, order.ID, frozen)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store dispatch snapshot")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed while dispatching").WithReason(pkgerrors.ReasonOrderChanged)
		}
		c.logg.Info(ctx, "auto allocation disabled; order left for manual assignment")
		return &DispatchResult{OrderID: order.ID, Outcome: OutcomeManualRequired, Method: enums.AllocationManual}, nil
	}

	strat, err := c.registry.Create(snap.Frozen)
	if err != nil {
		return nil, err
	}
	ok, err := c.repo.StartDispatch(ctx, order.ID, snap.Frozen)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store dispatch snapshot")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed while dispatching").WithReason(pkgerrors.ReasonOrderChanged)
	}
	order.DispatchSnapshot = &snap.Frozen
	order.AllocationMethod = snap.Frozen.Method

	return c.runRounds(ctx, *order, strat, nil)
}

// runRounds walks the strategy's rounds from where the ledger left off and
// stops at the first round with someone to offer to.
func (c *Coordinator) runRounds(ctx context.Context, order models.Order, strat Strategy, ledger Ledger) (*DispatchResult, error) {
	pool := &orderPool{
		order:     order,
		offered:   ledger.OfferedAgents(),
		repo:      c.repo,
		directory: c.directory,
		distance:  c.distance,
		logg:      c.logg,
	}
	for round := strat.EffectiveRound(ledger); round < strat.MaxRounds(); round++ {
		sel, err := strat.Select(ctx, Round{Order: order, Number: round, Now: c.now(), Pool: pool})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select candidates")
		}
		if len(sel.Candidates) > 0 {
			return c.offer(ctx, order, strat, ledger, round, sel)
		}
		if sel.Exhausted {
			break
		}
	}

	reason := ReasonNoCandidates
	if len(ledger) > 0 {
		reason = ReasonCandidatesExhausted
	}
	return c.failAllocation(ctx, order, strat, reason)
}

func (c *Coordinator) offer(ctx context.Context, order models.Order, strat Strategy, ledger Ledger, round int, sel Selection) (*DispatchResult, error) {
	now := c.now()
	expiresAt := now.Add(strat.Common().RequestExpiry())
	var claimed []models.Order

	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		claimed = claimed[:0]

		pending, err := repo.CountPending(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending offers")
		}
		if pending > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has pending offers").WithReason(pkgerrors.ReasonOfferNotPending)
		}

		for _, companion := range sel.Companions {
			ok, err := repo.ClaimCompanion(ctx, companion, order.ID, *order.DispatchSnapshot)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim companion order")
			}
			if ok {
				claimed = append(claimed, companion)
			}
		}
		var batchID *uuid.UUID
		if len(claimed) > 0 {
			id := order.ID
			batchID = &id
		}

		ok, err := repo.AdvanceRound(ctx, order.ID, order.DispatchRound, batchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance dispatch round")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed while dispatching").WithReason(pkgerrors.ReasonOrderChanged)
		}
		if err := repo.ClearCurrent(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear current candidate")
		}

		sequences := map[uuid.UUID]int{order.ID: ledger.NextSequence()}
		for _, companion := range claimed {
			companionLedger, err := repo.ListCandidates(ctx, companion.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load companion ledger")
			}
			sequences[companion.ID] = companionLedger.NextSequence()
		}

		orderIDs := append([]uuid.UUID{order.ID}, orderIDsOf(claimed)...)
		entries := make([]models.AgentCandidate, 0, len(sel.Candidates)*len(orderIDs))
		for _, cand := range sel.Candidates {
			for _, id := range orderIDs {
				entries = append(entries, models.AgentCandidate{
					OrderID:            id,
					AgentID:            cand.Agent.ID,
					Status:             enums.CandidateStatusPending,
					Round:              round,
					Sequence:           sequences[id],
					DistanceKm:         cand.DistanceKm,
					BatchID:            batchID,
					IsCurrentCandidate: true,
					OfferedAt:          now,
					ExpiresAt:          expiresAt,
				})
				sequences[id]++
			}
		}
		if err := repo.CreateCandidates(ctx, entries); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create candidate entries")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	orderID := order.ID
	c.scheduler.Schedule(expiryKey(orderID.String()), expiresAt, func() {
		c.onExpiryTimer(orderID)
	})

	batchOrders := orderIDsOf(claimed)
	if len(batchOrders) > 0 {
		batchOrders = append([]uuid.UUID{order.ID}, batchOrders...)
	}
	agents := make([]uuid.UUID, 0, len(sel.Candidates))
	for _, cand := range sel.Candidates {
		agents = append(agents, cand.Agent.ID)
		c.notify(ctx, cand.Agent.ID, Notification{
			Type:        enums.EventOfferCreated,
			OrderID:     order.ID,
			BatchOrders: batchOrders,
			Method:      strat.Method(),
			DistanceKm:  cand.DistanceKm,
			ExpiresAt:   &expiresAt,
		})
	}
	c.metrics.AddOffers(string(strat.Method()), len(agents))

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"round":  round,
		"method": strat.Method(),
		"offers": len(agents),
		"batch":  len(batchOrders),
	})
	c.logg.Info(logCtx, "offers created")

	return &DispatchResult{
		OrderID:       order.ID,
		Outcome:       OutcomeOffered,
		Method:        strat.Method(),
		Round:         round,
		OfferedAgents: agents,
		BatchOrderIDs: batchOrders,
		ExpiresAt:     &expiresAt,
	}, nil
}

func (c *Coordinator) failAllocation(ctx context.Context, order models.Order, strat Strategy, reason string) (*DispatchResult, error) {
	now := c.now()
	var autoCancelAt *time.Time
	if strat.Common().AutoCancelOnFail {
		at := now.Add(strat.Common().AutoCancelAfter())
		autoCancelAt = &at
	}

	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		pending, err := repo.CountPending(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending offers")
		}
		if pending > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order has pending offers").WithReason(pkgerrors.ReasonOfferNotPending)
		}
		if _, err := repo.ReleaseCompanions(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release companion orders")
		}
		ok, err := repo.MarkAllocationFailed(ctx, order.ID, reason, autoCancelAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark allocation failed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed while dispatching").WithReason(pkgerrors.ReasonOrderChanged)
		}
		return c.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderAllocationFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        &outbox.Source{Service: "dispatch"},
			Data: payloads.OrderAllocationFailedEvent{
				OrderID:      order.ID,
				Method:       strat.Method(),
				Reason:       reason,
				AutoCancelAt: autoCancelAt,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	c.scheduler.Cancel(expiryKey(order.ID.String()))
	if autoCancelAt != nil {
		orderID := order.ID
		c.scheduler.Schedule(autoCancelKey(orderID.String()), *autoCancelAt, func() {
			c.onAutoCancelTimer(orderID)
		})
	}
	c.metrics.IncFailure(string(strat.Method()))
	c.logg.Warn(c.logg.WithField(ctx, "reason", reason), "allocation failed")

	return &DispatchResult{
		OrderID:       order.ID,
		Outcome:       OutcomeAllocationFailed,
		Method:        strat.Method(),
		FailureReason: reason,
		AutoCancelAt:  autoCancelAt,
	}, nil
}

// RespondToOffer applies an agent's accept or reject to its pending offer.
// Batched offers are answered as a whole.
func (c *Coordinator) RespondToOffer(ctx context.Context, in RespondInput) (*OfferResponse, error) {
	if in.OrderID == uuid.Nil || in.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and agent id required")
	}
	if !in.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid decision %q", in.Decision))
	}
	ctx = c.logg.WithOrderID(ctx, in.OrderID.String())
	ctx = c.logg.WithAgentID(ctx, in.AgentID.String())

	order, err := c.loadOrder(ctx, c.repo, in.OrderID)
	if err != nil {
		return nil, err
	}
	ledger, err := c.repo.ListCandidates(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load candidate ledger")
	}
	entry, ok := ledger.Latest(in.AgentID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no offer for this agent")
	}

	target := enums.CandidateStatusAccepted
	if in.Decision == enums.OfferDecisionReject {
		target = enums.CandidateStatusRejected
	}
	if err := ensureTransition(entry, target); err != nil {
		return nil, err
	}

	primaryID := order.ID
	if entry.BatchID != nil {
		primaryID = *entry.BatchID
	}

	now := c.now()
	if !now.Before(entry.ExpiresAt) {
		if _, err := c.ExpireOrderOffers(ctx, primaryID); err != nil {
			c.logg.Error(ctx, "expire lapsed offer", err)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer expired").WithReason(pkgerrors.ReasonOfferExpired).
			WithDetails(map[string]any{"candidate_id": entry.ID, "expired_at": entry.ExpiresAt})
	}

	group := []models.AgentCandidate{entry}
	if entry.BatchID != nil {
		group, err = c.repo.ListBatchPending(ctx, *entry.BatchID, in.AgentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch offers")
		}
		if len(group) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offer is no longer pending").WithReason(pkgerrors.ReasonOfferNotPending)
		}
	}

	if in.Decision == enums.OfferDecisionAccept {
		return c.accept(ctx, order, primaryID, ledger, group, in.AgentID, now)
	}
	return c.reject(ctx, order, primaryID, group, in.AgentID, now)
}

func byOrderID(group []models.AgentCandidate) []models.AgentCandidate {
	sorted := slices.Clone(group)
	slices.SortFunc(sorted, func(a, b models.AgentCandidate) int {
		return bytes.Compare(a.OrderID[:], b.OrderID[:])
	})
	return sorted
}

func (c *Coordinator) accept(ctx context.Context, order *models.Order, primaryID uuid.UUID, ledger Ledger, group []models.AgentCandidate, agentID uuid.UUID, now time.Time) (*OfferResponse, error) {
	primary := order
	if primaryID != order.ID {
		var err error
		if primary, err = c.loadOrder(ctx, c.repo, primaryID); err != nil {
			return nil, err
		}
	}
	strat, err := c.strategyFor(primary)
	if err != nil {
		return nil, err
	}

	var withdrawn []models.AgentCandidate
	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		withdrawn = withdrawn[:0]
		// Order rows are locked first, in id order, so racing accepts queue on
		// the order instead of on each other's candidate rows.
		for _, entry := range byOrderID(group) {
			ok, err := repo.AssignOrder(ctx, entry.OrderID, agentID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already assigned").WithReason(pkgerrors.ReasonOrderAssigned)
			}
			ok, err = repo.AcceptCandidate(ctx, entry.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept offer")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "offer is no longer pending").WithReason(pkgerrors.ReasonOfferNotPending)
			}
			expired, err := repo.ExpirePending(ctx, entry.OrderID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw sibling offers")
			}
			withdrawn = append(withdrawn, expired...)
			if err := c.emitAssigned(ctx, tx, entry.OrderID, agentID, strat.Method(), false, now); err != nil {
				return err
			}
		}
		ok, err := repo.ReserveAgent(ctx, agentID, len(group), strat.Capacity(), now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve agent")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "agent cannot take more orders").WithReason(pkgerrors.ReasonAgentAtCapacity)
		}
		return nil
	})
	if db.IsTxConflict(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already assigned").WithReason(pkgerrors.ReasonOrderAssigned)
	}
	if err != nil {
		return nil, err
	}

	c.scheduler.Cancel(expiryKey(primaryID.String()))
	c.scheduler.Cancel(autoCancelKey(primaryID.String()))
	c.notifyWithdrawn(ctx, withdrawn, agentID, withdrawAssignedElsewhere)

	method := string(strat.Method())
	for range group {
		c.metrics.IncResolution(method, string(enums.CandidateStatusAccepted))
	}
	for range withdrawn {
		c.metrics.IncResolution(method, string(enums.CandidateStatusExpired))
	}
	if first, ok := ledger.First(); ok {
		c.metrics.ObserveTimeToAssign(method, now.Sub(first.OfferedAt))
	}
	c.logg.Info(ctx, "offer accepted")

	return &OfferResponse{
		OrderID:  order.ID,
		AgentID:  agentID,
		Decision: enums.OfferDecisionAccept,
		Outcome:  OutcomeAssigned,
		Orders:   candidateOrderIDs(group),
	}, nil
}

func (c *Coordinator) reject(ctx context.Context, order *models.Order, primaryID uuid.UUID, group []models.AgentCandidate, agentID uuid.UUID, now time.Time) (*OfferResponse, error) {
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		for _, entry := range group {
			ok, err := repo.RejectCandidate(ctx, entry.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject offer")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "offer is no longer pending").WithReason(pkgerrors.ReasonOfferNotPending)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range group {
		c.metrics.IncResolution(string(order.AllocationMethod), string(enums.CandidateStatusRejected))
	}
	c.logg.Info(ctx, "offer rejected")

	next, err := c.advance(ctx, primaryID)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, err
		}
		// another worker already moved the order on
		next = &DispatchResult{OrderID: primaryID, Outcome: OutcomeNoop}
	}
	return &OfferResponse{
		OrderID:  order.ID,
		AgentID:  agentID,
		Decision: enums.OfferDecisionReject,
		Outcome:  OutcomeRejected,
		Orders:   candidateOrderIDs(group),
		Next:     next,
	}, nil
}

// advance starts the next round once an order has no pending offers left.
func (c *Coordinator) advance(ctx context.Context, orderID uuid.UUID) (*DispatchResult, error) {
	order, err := c.loadOrder(ctx, c.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.BatchID != nil && *order.BatchID != order.ID {
		if order, err = c.loadOrder(ctx, c.repo, *order.BatchID); err != nil {
			return nil, err
		}
	}
	if order.Status != enums.OrderStatusOffering || order.AssignedAgentID != nil {
		return &DispatchResult{OrderID: order.ID, Outcome: OutcomeNoop, Method: order.AllocationMethod}, nil
	}
	pending, err := c.repo.CountPending(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending offers")
	}
	if pending > 0 {
		return &DispatchResult{OrderID: order.ID, Outcome: OutcomeNoop, Method: order.AllocationMethod}, nil
	}

	strat, err := c.strategyFor(order)
	if err != nil {
		return nil, err
	}
	if order.BatchID != nil {
		err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := c.repo.WithTx(tx).ReleaseCompanions(ctx, order.ID)
			return err
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release companion orders")
		}
		order.BatchID = nil
	}
	c.scheduler.Cancel(expiryKey(order.ID.String()))

	ledger, err := c.repo.ListCandidates(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load candidate ledger")
	}
	return c.runRounds(c.logg.WithOrderID(ctx, order.ID.String()), *order, strat, ledger)
}

// ExpireOrderOffers expires the lapsed pending offers of an order (and its
// batch) and moves dispatch on.
func (c *Coordinator) ExpireOrderOffers(ctx context.Context, orderID uuid.UUID) (*DispatchResult, error) {
	order, err := c.loadOrder(ctx, c.repo, orderID)
	if err != nil {
		return nil, err
	}
	primaryID := order.ID
	if order.BatchID != nil {
		primaryID = *order.BatchID
	}
	ledger, err := c.repo.ListCandidates(ctx, primaryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load candidate ledger")
	}

	now := c.now()
	var expired []models.AgentCandidate
	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		expired = expired[:0]
		for _, entry := range ledger.Pending() {
			if now.Before(entry.ExpiresAt) {
				continue
			}
			group := []models.AgentCandidate{entry}
			if entry.BatchID != nil {
				batch, err := repo.ListBatchPending(ctx, *entry.BatchID, entry.AgentID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch offers")
				}
				group = batch
			}
			for _, g := range group {
				ok, err := repo.ExpireCandidate(ctx, g.ID, now)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire offer")
				}
				if ok {
					expired = append(expired, g)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(expired) > 0 {
		for range expired {
			c.metrics.IncResolution(string(order.AllocationMethod), string(enums.CandidateStatusExpired))
		}
		c.notifyWithdrawn(ctx, expired, uuid.Nil, withdrawExpired)
		c.logg.Info(c.logg.WithField(ctx, "expired", len(expired)), "offers expired")
	}
	return c.advance(ctx, primaryID)
}

// ExpireDueOffers sweeps lapsed offers across orders. It returns how many
// orders it processed.
func (c *Coordinator) ExpireDueOffers(ctx context.Context, limit int) (int, error) {
	due, err := c.repo.ListDueCandidates(ctx, c.now(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due offers")
	}
	seen := map[uuid.UUID]struct{}{}
	var errs error
	processed := 0
	for _, entry := range due {
		id := entry.OrderID
		if entry.BatchID != nil {
			id = *entry.BatchID
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := c.ExpireOrderOffers(ctx, id); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", id, err))
			continue
		}
		processed++
	}
	return processed, errs
}

// AutoCancelDue cancels allocation-failed orders whose grace period ran out.
func (c *Coordinator) AutoCancelDue(ctx context.Context, limit int) (int, error) {
	orders, err := c.repo.ListAutoCancelDue(ctx, c.now(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list auto-cancel due orders")
	}
	var errs error
	canceled := 0
	for _, o := range orders {
		ok, err := c.autoCancel(ctx, o.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		if ok {
			canceled++
		}
	}
	return canceled, errs
}

func (c *Coordinator) autoCancel(ctx context.Context, orderID uuid.UUID) (bool, error) {
	now := c.now()
	canceled := false
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := c.repo.WithTx(tx).CancelIfDue(ctx, orderID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return nil
		}
		canceled = true
		return c.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderAutoCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Source:        &outbox.Source{Service: "dispatch"},
			Data:          payloads.OrderAutoCanceledEvent{OrderID: orderID, CanceledAt: now},
			OccurredAt:    now,
		})
	})
	if err != nil {
		return false, err
	}
	if canceled {
		c.logg.Info(c.logg.WithOrderID(ctx, orderID.String()), "order auto-canceled")
	}
	return canceled, nil
}

// DispatchPending dispatches never-dispatched orders oldest first.
func (c *Coordinator) DispatchPending(ctx context.Context, limit int) (int, error) {
	orders, err := c.repo.ListUndispatched(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending orders")
	}
	var errs error
	dispatched := 0
	for _, o := range orders {
		if _, err := c.DispatchOrder(ctx, o.ID); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		dispatched++
	}
	return dispatched, errs
}

// ManuallyAssign gives an order to an available agent, withdrawing any open
// offers and stopping automatic dispatch for it.
func (c *Coordinator) ManuallyAssign(ctx context.Context, orderID, agentID uuid.UUID) (*AssignResult, error) {
	if orderID == uuid.Nil || agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and agent id required")
	}
	ctx = c.logg.WithOrderID(ctx, orderID.String())
	ctx = c.logg.WithAgentID(ctx, agentID.String())

	order, err := c.loadOrder(ctx, c.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.AssignedAgentID != nil || !manuallyAssignable(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order is %s", order.Status)).WithReason(pkgerrors.ReasonOrderStatus)
	}
	agent, err := c.repo.FindAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	if agent.Status != enums.AgentStatusAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("agent is %s", agent.Status)).WithReason(pkgerrors.ReasonAgentUnavailable)
	}
	capacity, err := c.capacityFor(ctx, order)
	if err != nil {
		return nil, err
	}
	if agent.ActiveTasks+1 > capacity {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "agent is at capacity").WithReason(pkgerrors.ReasonAgentAtCapacity)
	}

	now := c.now()
	var withdrawn []models.AgentCandidate
	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		ok, err := repo.ReserveAgent(ctx, agentID, 1, capacity, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve agent")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "agent is no longer available").WithReason(pkgerrors.ReasonAgentUnavailable)
		}
		if withdrawn, err = repo.ExpirePending(ctx, order.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw pending offers")
		}
		if order.BatchID != nil && *order.BatchID == order.ID {
			if _, err := repo.ReleaseCompanions(ctx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release companion orders")
			}
		}
		if err := repo.ClearCurrent(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear current candidate")
		}

		ledger, err := repo.ListCandidates(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load candidate ledger")
		}
		round := 0
		if rounds := ledger.Rounds(); len(rounds) > 0 {
			round = rounds[len(rounds)-1]
		}
		responded := now
		if err := repo.CreateCandidates(ctx, []models.AgentCandidate{{
			OrderID:            order.ID,
			AgentID:            agentID,
			Status:             enums.CandidateStatusAccepted,
			Round:              round,
			Sequence:           ledger.NextSequence(),
			DistanceKm:         agentDistance(*agent, *order),
			IsCurrentCandidate: true,
			OfferedAt:          now,
			ExpiresAt:          now,
			RespondedAt:        &responded,
		}}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record manual assignment")
		}

		ok, err = repo.AssignOrderManually(ctx, order.ID, agentID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed while assigning").WithReason(pkgerrors.ReasonOrderChanged)
		}
		return c.emitAssigned(ctx, tx, order.ID, agentID, enums.AllocationManual, true, now)
	})
	if err != nil {
		return nil, err
	}

	c.scheduler.Cancel(expiryKey(order.ID.String()))
	c.scheduler.Cancel(autoCancelKey(order.ID.String()))
	c.notifyWithdrawn(ctx, withdrawn, agentID, withdrawManual)
	for range withdrawn {
		c.metrics.IncResolution(string(order.AllocationMethod), string(enums.CandidateStatusExpired))
	}
	c.logg.Info(ctx, "order manually assigned")

	agents := make([]uuid.UUID, 0, len(withdrawn))
	for _, w := range withdrawn {
		if w.AgentID != agentID {
			agents = append(agents, w.AgentID)
		}
	}
	return &AssignResult{
		OrderID:         order.ID,
		AgentID:         agentID,
		Outcome:         OutcomeAssigned,
		AssignedAt:      now,
		WithdrawnAgents: agents,
	}, nil
}

func (c *Coordinator) onExpiryTimer(orderID uuid.UUID) {
	ctx := c.logg.WithOrderID(context.Background(), orderID.String())
	if _, err := c.ExpireOrderOffers(ctx, orderID); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		c.logg.Error(ctx, "offer expiry timer failed", err)
	}
}

func (c *Coordinator) onAutoCancelTimer(orderID uuid.UUID) {
	ctx := c.logg.WithOrderID(context.Background(), orderID.String())
	if _, err := c.autoCancel(ctx, orderID); err != nil {
		c.logg.Error(ctx, "auto-cancel timer failed", err)
	}
}

func (c *Coordinator) emitAssigned(ctx context.Context, tx *gorm.DB, orderID, agentID uuid.UUID, method enums.AllocationMethod, manual bool, at time.Time) error {
	return c.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderAssigned,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Source:        &outbox.Source{Service: "dispatch"},
		Data: payloads.OrderAssignedEvent{
			OrderID:  orderID,
			AgentID:  agentID,
			Method:   method,
			Manual:   manual,
			Assigned: at,
		},
		OccurredAt: at,
	})
}

func (c *Coordinator) notify(ctx context.Context, agentID uuid.UUID, n Notification) {
	if err := c.notifier.Send(ctx, agentID, n); err != nil {
		c.logg.Warn(c.logg.WithField(c.logg.WithAgentID(ctx, agentID.String()), "error", err.Error()), "agent notification failed")
	}
}

// notifyWithdrawn tells each agent once that its offer is gone. except is
// skipped.
func (c *Coordinator) notifyWithdrawn(ctx context.Context, entries []models.AgentCandidate, except uuid.UUID, reason string) {
	sent := map[uuid.UUID]struct{}{except: {}}
	for _, e := range entries {
		if _, ok := sent[e.AgentID]; ok {
			continue
		}
		sent[e.AgentID] = struct{}{}
		orderID := e.OrderID
		if e.BatchID != nil {
			orderID = *e.BatchID
		}
		c.notify(ctx, e.AgentID, Notification{
			Type:    enums.EventOfferWithdrawn,
			OrderID: orderID,
			Reason:  reason,
		})
	}
}

func (c *Coordinator) loadOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (c *Coordinator) strategyFor(order *models.Order) (Strategy, error) {
	if order.DispatchSnapshot == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order has no dispatch snapshot")
	}
	return c.registry.Create(*order.DispatchSnapshot)
}

// capacityFor is the task cap that applies to an agent taking this order:
// the order's frozen strategy, else the current settings, else one.
func (c *Coordinator) capacityFor(ctx context.Context, order *models.Order) (int, error) {
	snap := order.DispatchSnapshot
	if snap == nil || !snap.Method.IsAutomatic() {
		current, err := c.settings.Snapshot(ctx, c.now())
		if err != nil {
			return 0, err
		}
		snap = &current.Frozen
	}
	if !snap.Method.IsAutomatic() {
		return 1, nil
	}
	strat, err := c.registry.Create(*snap)
	if err != nil {
		return 0, err
	}
	return strat.Capacity(), nil
}

func manuallyAssignable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusUnassigned, enums.OrderStatusOffering, enums.OrderStatusAllocationFailed:
		return true
	}
	return false
}

func agentDistance(agent models.Agent, order models.Order) float64 {
	return geo.HaversineKm(agent.Location(), order.Pickup())
}

func orderIDsOf(orders []models.Order) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func candidateOrderIDs(entries []models.AgentCandidate) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.OrderID)
	}
	return out
}
