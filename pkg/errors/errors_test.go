package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestReasonTravelsThroughWrapping(t *testing.T) {
	base := New(CodeStateConflict, "offer is no longer pending").WithReason(ReasonOfferNotPending)
	if got := base.Error(); got != "STATE_CONFLICT[offer_not_pending]: offer is no longer pending" {
		t.Fatalf("unexpected error string %q", got)
	}
	wrapped := fmt.Errorf("respond to offer: %w", base)
	if ReasonOf(wrapped) != ReasonOfferNotPending {
		t.Fatalf("reason lost through wrapping: %q", ReasonOf(wrapped))
	}
	if ReasonOf(stdErrors.New("plain")) != "" {
		t.Fatalf("plain errors carry no reason")
	}
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeDependency, cause, "load agent").WithDetails(map[string]any{"agent_id": "a-1"})
	if !stdErrors.Is(err, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if err.Details() == nil || err.Reason() != "" {
		t.Fatalf("unexpected details/reason: %v %q", err.Details(), err.Reason())
	}
	if got := Newf(CodeValidation, "radius %d out of range", 0).Message(); got != "radius 0 out of range" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeStateConflict, "offer already resolved")
	if got := As(err); got == nil || got.Code() != CodeStateConflict {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeNotFound, "order not found")
	outer := fmt.Errorf("dispatch: %w", inner)
	if !IsCode(outer, CodeNotFound) {
		t.Fatalf("expected IsCode to see NOT_FOUND through fmt wrapping")
	}
	if IsCode(outer, CodeConflict) {
		t.Fatalf("unexpected CONFLICT match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}
