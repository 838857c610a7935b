package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestChecker_ServeHTTP(t *testing.T) {
	tests := []struct {
		name          string
		pinger        Pinger
		policy        PolicyChecker
		wantCode      int
		wantStatus    string
		wantComponent string
	}{
		{"no dependencies", nil, nil, http.StatusOK, "ok", ""},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, http.StatusOK, "ok", ""},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, http.StatusServiceUnavailable, "unavailable", "database"},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("eval")}, http.StatusServiceUnavailable, "unavailable", "policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewChecker(tt.pinger, tt.policy, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if body.Status != tt.wantStatus || body.Component != tt.wantComponent {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestChecker_Watch(t *testing.T) {
	pinger := &mockPinger{pingErr: errors.New("down")}
	srv := health.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		NewChecker(pinger, nil, nil).Watch(ctx, srv, time.Hour, "socialmedia.session.v1.SessionService")
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "socialmedia.session.v1.SessionService"})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status not updated: resp=%v err=%v", resp, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
