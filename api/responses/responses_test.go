package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"outcome": "offered"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var body SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.(map[string]any)["outcome"] != "offered" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "bad"), http.StatusBadRequest},
		{pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), http.StatusNotFound},
		{pkgerrors.New(pkgerrors.CodeConflict, "already taken"), http.StatusConflict},
		{pkgerrors.New(pkgerrors.CodeStateConflict, "expired"), http.StatusUnprocessableEntity},
		{pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial"), "db"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), logger.Nop(), w, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
	}
}

func TestWriteErrorKeepsDetailsForValidation(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{"decision": "is required"})
	WriteError(context.Background(), nil, w, err)

	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) || body.Error.Details == nil {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInternal) || body.Error.Details != nil {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
	if body.Error.Message != "internal server error" {
		t.Fatalf("internal message leaked: %q", body.Error.Message)
	}
}

func TestWriteErrorExposesReason(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeConflict, "agent is at capacity").WithReason(pkgerrors.ReasonAgentAtCapacity)
	WriteError(context.Background(), logger.Nop(), w, err)

	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Reason != pkgerrors.ReasonAgentAtCapacity {
		t.Fatalf("expected reason %q, got %q", pkgerrors.ReasonAgentAtCapacity, body.Error.Reason)
	}
}
