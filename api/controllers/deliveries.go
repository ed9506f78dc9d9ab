package controllers

import (
	"net/http"

	"github.com/angelmondragon/courier-dispatch/api/responses"
	"github.com/angelmondragon/courier-dispatch/api/validators"
	"github.com/angelmondragon/courier-dispatch/internal/deliveries"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

func MarkPickedUp(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
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
		res, err := svc.MarkPickedUp(r.Context(), orderID, req.AgentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// CompleteDelivery records the drop-off and the agent's earning.
func CompleteDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req deliveries.CompletionInput
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.OrderID = orderID
		res, err := svc.RecordDeliveryCompletion(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
