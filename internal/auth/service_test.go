package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDisabledModeAllowsEveryone(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Mode() != ModeDisabled {
		t.Fatalf("unexpected mode %s", svc.Mode())
	}
	if _, err := svc.Authenticate(""); err != nil {
		t.Fatalf("disabled mode should not fail: %v", err)
	}
}

func TestTokenMode(t *testing.T) {
	t.Setenv("UB_TEST_OPS_TOKEN", "ops-secret")
	svc, err := NewService(Config{Mode: ModeToken, Tokens: []TokenConfig{
		{Name: "frontend", SHA256: HashToken("front-secret")},
		{Name: "ops", TokenEnv: "UB_TEST_OPS_TOKEN"},
	}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	subject, err := svc.Authenticate("Bearer front-secret")
	if err != nil || subject.Name != "frontend" {
		t.Fatalf("unexpected subject %+v: %v", subject, err)
	}
	subject, err = svc.Authenticate("Bearer ops-secret")
	if err != nil || subject.Name != "ops" {
		t.Fatalf("unexpected subject %+v: %v", subject, err)
	}
	if _, err := svc.Authenticate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := svc.Authenticate("Bearer nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{Mode: "oauth"},
		{Mode: ModeToken},
		{Mode: ModeToken, Tokens: []TokenConfig{{Name: "x", SHA256: "abc"}}},
		{Mode: ModeToken, Tokens: []TokenConfig{{Name: "x", TokenEnv: "UB_TEST_UNSET_TOKEN_ENV"}}},
		{Mode: ModeToken, Tokens: []TokenConfig{{SHA256: HashToken("a")}}},
	}
	for i, cfg := range cases {
		if _, err := NewService(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestMiddleware(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeToken, Tokens: []TokenConfig{{Name: "ops", SHA256: HashToken("s3cret")}}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	var seen string
	handler := svc.Middleware("feedback")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context()).Name
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || seen != "" {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/feedback", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted || seen != "ops" {
		t.Fatalf("unexpected result %d subject %q", rec.Code, seen)
	}
}
