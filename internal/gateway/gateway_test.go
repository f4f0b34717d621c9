package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campaign-engine/internal/domain"
	"campaign-engine/internal/gateway"
)

func TestSendAccepted(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"messageId": "dlv-123"})
	}))
	defer srv.Close()

	gw := gateway.NewWebhookGateway(srv.URL, time.Second)
	id, err := gw.Send(context.Background(), "+15550001111", "hello", &domain.Media{Type: "image", URL: "https://cdn.example/a.png"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if id != "dlv-123" {
		t.Errorf("delivery id = %q, want dlv-123", id)
	}
	if got["to"] != "+15550001111" || got["content"] != "hello" || got["media_url"] != "https://cdn.example/a.png" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestSendServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := gateway.NewWebhookGateway(srv.URL, time.Second)
	_, err := gw.Send(context.Background(), "+15550001111", "hello", nil)
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if gateway.IsPermanent(err) {
		t.Error("5xx must be classified transient")
	}
}

func TestSendRejectionIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	gw := gateway.NewWebhookGateway(srv.URL, time.Second)
	_, err := gw.Send(context.Background(), "not-a-number", "hello", nil)
	if err == nil {
		t.Fatal("expected error on 422")
	}
	if !gateway.IsPermanent(err) {
		t.Error("4xx must be classified permanent")
	}
}

func TestSendNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	gw := gateway.NewWebhookGateway(srv.URL, time.Second)
	_, err := gw.Send(context.Background(), "+15550001111", "hello", nil)
	if err == nil {
		t.Fatal("expected error on closed server")
	}
	if gateway.IsPermanent(err) {
		t.Error("network errors must be classified transient")
	}
}
