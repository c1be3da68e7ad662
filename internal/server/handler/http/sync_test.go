package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/studentlink/portalsync/internal/models"
)

type mockSyncService struct {
	PerformFullSyncFunc func(ctx context.Context, userID, password string) (*models.SyncResult, error)
	ChangePasswordFunc  func(ctx context.Context, userID, current, newPassword string) (bool, error)
}

func (m *mockSyncService) PerformFullSync(ctx context.Context, userID, password string) (*models.SyncResult, error) {
	return m.PerformFullSyncFunc(ctx, userID, password)
}

func (m *mockSyncService) ChangePassword(ctx context.Context, userID, current, newPassword string) (bool, error) {
	return m.ChangePasswordFunc(ctx, userID, current, newPassword)
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newTestRouter(svc SyncService) http.Handler {
	handler := &SyncHandler{SyncService: svc, Logger: zap.NewNop()}
	return NewRouter(handler, zap.NewNop())
}

func TestSync_Success(t *testing.T) {
	svc := &mockSyncService{
		PerformFullSyncFunc: func(_ context.Context, userID, password string) (*models.SyncResult, error) {
			if userID != "S100" || password != "secret" {
				t.Errorf("unexpected credentials: %q %q", userID, password)
			}
			return &models.SyncResult{IsNewUser: true, PeriodCode: "2026-1"}, nil
		},
	}

	rec := postJSON(t, newTestRouter(svc), "/api/sync", SyncRequest{UserID: "S100", Password: "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var result models.SyncResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.IsNewUser || result.PeriodCode != "2026-1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSync_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"authentication", models.ErrAuthentication, http.StatusUnauthorized},
		{"locked out", models.ErrLockedOut, http.StatusTooManyRequests},
		{"busy", models.ErrBusy, http.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unrecognized page", &models.ParseError{Page: "dashboard", Marker: "_pc link"}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockSyncService{
				PerformFullSyncFunc: func(context.Context, string, string) (*models.SyncResult, error) {
					return nil, tc.err
				},
			}
			rec := postJSON(t, newTestRouter(svc), "/api/sync", SyncRequest{UserID: "S100", Password: "pw"})
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSync_InvalidRequest(t *testing.T) {
	svc := &mockSyncService{
		PerformFullSyncFunc: func(context.Context, string, string) (*models.SyncResult, error) {
			t.Fatal("service must not be called for an invalid request")
			return nil, nil
		},
	}

	rec := postJSON(t, newTestRouter(svc), "/api/sync", SyncRequest{Password: "pw"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSync_RejectsNonJSON(t *testing.T) {
	svc := &mockSyncService{}
	req := httptest.NewRequest(http.MethodPost, "/api/sync", bytes.NewReader([]byte("user=S100")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestChangePassword_Success(t *testing.T) {
	svc := &mockSyncService{
		ChangePasswordFunc: func(_ context.Context, userID, current, newPassword string) (bool, error) {
			if userID != "S100" || current != "old" || newPassword != "new" {
				t.Errorf("unexpected payload: %q %q %q", userID, current, newPassword)
			}
			return true, nil
		},
	}

	rec := postJSON(t, newTestRouter(svc), "/api/password", ChangePasswordRequest{UserID: "S100", Current: "old", New: "new"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var result map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result["changed"] {
		t.Error("expected changed=true")
	}
}

func TestChangePassword_LockedOut(t *testing.T) {
	svc := &mockSyncService{
		ChangePasswordFunc: func(context.Context, string, string, string) (bool, error) {
			return false, models.ErrLockedOut
		},
	}

	rec := postJSON(t, newTestRouter(svc), "/api/password", ChangePasswordRequest{UserID: "S100", Current: "old", New: "new"})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	svc := &mockSyncService{}
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
