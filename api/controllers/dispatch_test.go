package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/courier-dispatch/internal/dispatch"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

type testDispatcher struct {
	dispatchFn func(ctx context.Context, orderID uuid.UUID) (*dispatch.DispatchResult, error)
	respondFn  func(ctx context.Context, in dispatch.RespondInput) (*dispatch.OfferResponse, error)
	assignFn   func(ctx context.Context, orderID, agentID uuid.UUID) (*dispatch.AssignResult, error)
}

func (d *testDispatcher) DispatchOrder(ctx context.Context, orderID uuid.UUID) (*dispatch.DispatchResult, error) {
	return d.dispatchFn(ctx, orderID)
}

func (d *testDispatcher) RespondToOffer(ctx context.Context, in dispatch.RespondInput) (*dispatch.OfferResponse, error) {
	return d.respondFn(ctx, in)
}

func (d *testDispatcher) ManuallyAssign(ctx context.Context, orderID, agentID uuid.UUID) (*dispatch.AssignResult, error) {
	return d.assignFn(ctx, orderID, agentID)
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestRespondToOfferPassesDecision(t *testing.T) {
	orderID := uuid.New()
	agentID := uuid.New()
	svc := &testDispatcher{
		respondFn: func(_ context.Context, in dispatch.RespondInput) (*dispatch.OfferResponse, error) {
			if in.OrderID != orderID || in.AgentID != agentID {
				t.Fatalf("unexpected ids %s %s", in.OrderID, in.AgentID)
			}
			if in.Decision != enums.OfferDecisionAccept {
				t.Fatalf("unexpected decision %s", in.Decision)
			}
			return &dispatch.OfferResponse{OrderID: orderID, AgentID: agentID, Decision: in.Decision, Outcome: dispatch.OutcomeAssigned}, nil
		},
	}

	body := `{"agentId":"` + agentID.String() + `","decision":"accept"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/"+orderID.String()+"/offers/respond", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	RespondToOffer(svc, logger.Nop())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data dispatch.OfferResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Outcome != dispatch.OutcomeAssigned {
		t.Fatalf("unexpected outcome %s", envelope.Data.Outcome)
	}
}

func TestRespondToOfferRejectsUnknownDecision(t *testing.T) {
	orderID := uuid.New()
	svc := &testDispatcher{
		respondFn: func(context.Context, dispatch.RespondInput) (*dispatch.OfferResponse, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	body := `{"agentId":"` + uuid.NewString() + `","decision":"maybe"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	RespondToOffer(svc, logger.Nop())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if code := decodeError(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestDispatchOrderRejectsBadPath(t *testing.T) {
	svc := &testDispatcher{}
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"orderId": "nope"})
	resp := httptest.NewRecorder()
	DispatchOrder(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestManuallyAssignMapsStateConflict(t *testing.T) {
	orderID := uuid.New()
	svc := &testDispatcher{
		assignFn: func(context.Context, uuid.UUID, uuid.UUID) (*dispatch.AssignResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is delivered")
		},
	}
	body := `{"agentId":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	ManuallyAssign(svc, logger.Nop())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if code := decodeError(t, resp); code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestManuallyAssignRejectsUnknownFields(t *testing.T) {
	svc := &testDispatcher{}
	body := `{"agentId":"` + uuid.NewString() + `","force":true}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = withURLParams(req, map[string]string{"orderId": uuid.NewString()})
	resp := httptest.NewRecorder()
	ManuallyAssign(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
