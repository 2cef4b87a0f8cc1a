package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

type messagePayload struct {
	Message string `json:"message" validate:"required,max=2000"`
}

func TestDecodeJSONValidates(t *testing.T) {
	validate := validator.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":""}`))
	var payload messagePayload
	err := DecodeJSON(req, &payload, validate)
	if err == nil || !strings.Contains(err.Error(), "message failed required") {
		t.Fatalf("expected required failure, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi"}`))
	if err := DecodeJSON(req, &payload, validate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Message != "hi" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	var payload messagePayload
	if err := DecodeJSON(req, &payload, nil); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSendSSEEventFormat(t *testing.T) {
	resp := httptest.NewRecorder()
	SetupSSEHeaders(resp)
	SendSSEEvent(resp, resp, "metrics", map[string]int{"cpu": 12})

	if got := resp.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", got)
	}
	if body := resp.Body.String(); body != "event: metrics\ndata: {\"cpu\":12}\n\n" {
		t.Fatalf("unexpected body: %q", body)
	}
}
