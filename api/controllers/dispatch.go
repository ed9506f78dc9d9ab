package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/api/responses"
	"github.com/angelmondragon/courier-dispatch/api/validators"
	"github.com/angelmondragon/courier-dispatch/internal/dispatch"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

// Dispatcher is the slice of the coordinator the HTTP surface drives.
type Dispatcher interface {
	DispatchOrder(ctx context.Context, orderID uuid.UUID) (*dispatch.DispatchResult, error)
	RespondToOffer(ctx context.Context, in dispatch.RespondInput) (*dispatch.OfferResponse, error)
	ManuallyAssign(ctx context.Context, orderID, agentID uuid.UUID) (*dispatch.AssignResult, error)
}

type offerResponseRequest struct {
	AgentID  uuid.UUID           `json:"agentId" validate:"required"`
	Decision enums.OfferDecision `json:"decision" validate:"required,oneof=accept reject"`
}

type agentRequest struct {
	AgentID uuid.UUID `json:"agentId" validate:"required"`
}

// DispatchOrder starts automatic allocation for an unassigned order.
func DispatchOrder(svc Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.DispatchOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// RespondToOffer records an agent's accept or reject.
func RespondToOffer(svc Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req offerResponseRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.RespondToOffer(r.Context(), dispatch.RespondInput{
			OrderID:  orderID,
			AgentID:  req.AgentID,
			Decision: req.Decision,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// ManuallyAssign lets an operator pick the agent.
func ManuallyAssign(svc Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req agentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.ManuallyAssign(r.Context(), orderID, req.AgentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
