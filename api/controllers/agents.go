package controllers

import (
	"net/http"

	"github.com/angelmondragon/courier-dispatch/api/responses"
	"github.com/angelmondragon/courier-dispatch/api/validators"
	"github.com/angelmondragon/courier-dispatch/internal/earnings"
	"github.com/angelmondragon/courier-dispatch/internal/milestones"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

func ListAgentEarnings(svc earnings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := validators.PathUUID(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListAgentEarnings(r.Context(), agentID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AgentMilestones(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := validators.PathUUID(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		progress, err := svc.Progress(r.Context(), agentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, progress)
	}
}

// ClaimMilestone claims a completed level. A repeated claim is reported with
// alreadyClaimed set rather than as an error.
func ClaimMilestone(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := validators.PathUUID(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		milestoneID, err := validators.PathUUID(r, "milestoneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.ClaimReward(r.Context(), agentID, milestoneID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func ListMilestoneRewards(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rewards, err := svc.ListRewards(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rewards)
	}
}

func CreateMilestoneReward(svc milestones.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req milestones.RewardInput
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reward, err := svc.CreateReward(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reward)
	}
}
