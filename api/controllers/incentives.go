package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/courier-dispatch/api/responses"
	"github.com/angelmondragon/courier-dispatch/api/validators"
	"github.com/angelmondragon/courier-dispatch/internal/incentives"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

type batchRequest struct {
	AsOf *time.Time `json:"asOf"`
}

// RunIncentiveBatch recomputes every active plan for the period containing
// asOf, defaulting to now.
func RunIncentiveBatch(svc incentives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		asOf := time.Now().UTC()
		if req.AsOf != nil {
			asOf = req.AsOf.UTC()
		}
		res, err := svc.RunBatch(r.Context(), asOf)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func ListIncentivePlans(svc incentives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.ListPlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plans)
	}
}

func CreateIncentivePlan(svc incentives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req incentives.PlanInput
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := svc.CreatePlan(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, plan)
	}
}

// ListIncentiveEarnings pages stored incentive rows, newest first. planId,
// agentId and period narrow the result.
func ListIncentiveEarnings(svc incentives.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		planID, err := validators.QueryUUID(r, "planId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agentID, err := validators.QueryUUID(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListEarnings(r.Context(), incentives.EarningFilter{
			PlanID:  planID,
			AgentID: agentID,
			Period:  strings.TrimSpace(r.URL.Query().Get("period")),
		}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
