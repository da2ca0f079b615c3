package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func routesApp(t *testing.T) *fiber.App {
	t.Helper()
	svc, err := NewService("secret", "hunter2")
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	app := fiber.New()
	RegisterRoutes(app.Group("/auth"), svc)
	return app
}

func TestLoginRoute(t *testing.T) {
	app := routesApp(t)

	body, _ := json.Marshal(LoginRequest{Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var tokens TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tokens.AccessToken == "" {
		t.Fatalf("expected access token")
	}

	// and the token passes verify
	req = httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected verify 200, got %d", resp.StatusCode)
	}
}

func TestLoginRouteRejectsBadPassword(t *testing.T) {
	app := routesApp(t)

	body, _ := json.Marshal(LoginRequest{Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginRouteRequiresPassword(t *testing.T) {
	app := routesApp(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestVerifyWithoutToken(t *testing.T) {
	app := routesApp(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
