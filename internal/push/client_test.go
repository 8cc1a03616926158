package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSend(t *testing.T) {
	var captured message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q, want bearer key", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(providerResponse{ID: "delivery-1"}); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, false)
	result, err := client.Send(context.Background(), []string{"tok-1", "tok-2"}, "Visitor at the gate", "Juan: Delivery", map[string]interface{}{
		"notificationId": "n-1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if result.DeliveryID != "delivery-1" {
		t.Errorf("delivery id = %q, want delivery-1", result.DeliveryID)
	}
	if result.DeviceCount != 2 {
		t.Errorf("device count = %d, want 2", result.DeviceCount)
	}
	if len(captured.To) != 2 {
		t.Errorf("tokens = %v, want 2 entries", captured.To)
	}
	if captured.Title != "Visitor at the gate" {
		t.Errorf("title = %q", captured.Title)
	}
	if captured.ContentAvailable {
		t.Error("visible prompt must not be content-available")
	}
}

func TestSendNoTokens(t *testing.T) {
	client := NewClient("key", "http://unused", false)
	if _, err := client.Send(context.Background(), nil, "t", "b", nil); err == nil {
		t.Fatal("expected error for empty token list")
	}
}

func TestSendProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient("key", server.URL, false)
	if _, err := client.Send(context.Background(), []string{"tok"}, "t", "b", nil); err == nil {
		t.Fatal("expected error on provider failure")
	}
}

func TestSendDevMode(t *testing.T) {
	// Dev mode never touches the network.
	client := NewClient("", "http://127.0.0.1:1", true)
	result, err := client.Send(context.Background(), []string{"tok"}, "t", "b", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.DeviceCount != 1 {
		t.Errorf("device count = %d, want 1", result.DeviceCount)
	}
}

func TestRetract(t *testing.T) {
	var captured message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if err := json.NewEncoder(w).Encode(providerResponse{ID: "delivery-2"}); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient("key", server.URL, false)
	if err := client.Retract(context.Background(), []string{"tok"}, "n-1"); err != nil {
		t.Fatalf("retract: %v", err)
	}

	if !captured.ContentAvailable {
		t.Error("retract must be a silent content-available payload")
	}
	if captured.Title != "" || captured.Body != "" {
		t.Error("retract must not carry visible text")
	}
	if captured.Data["type"] != "retract" {
		t.Errorf("data type = %v, want retract", captured.Data["type"])
	}
	if captured.Data["notificationId"] != "n-1" {
		t.Errorf("data notificationId = %v, want n-1", captured.Data["notificationId"])
	}
}

func TestRetractNoTokens(t *testing.T) {
	client := NewClient("key", "http://127.0.0.1:1", false)
	if err := client.Retract(context.Background(), nil, "n-1"); err != nil {
		t.Fatalf("retract with no tokens should be a no-op, got %v", err)
	}
}
