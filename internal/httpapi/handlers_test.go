package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bengkelinaja/internal/cache"
	"bengkelinaja/internal/domain"
	"bengkelinaja/internal/service"
	"bengkelinaja/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	repo.MustSeedUser("admin", "admin123", "admin")
	repo.MustSeedUser("agus", "bengkel1", "mechanic")
	svc := service.New(repo, cache.NoopJobsheetCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newTestClient(t *testing.T, api *API, username, password string) *testClient {
	t.Helper()
	c := &testClient{t: t, handler: api.Handler()}

	rec := c.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var loginResp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	c.token = loginResp.AccessToken

	rec = c.do(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d", rec.Code)
	}
	var csrfResp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&csrfResp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	c.csrf = csrfResp["csrf_token"]
	return c
}

func (c *testClient) do(method, path string, payload any) *httptest.ResponseRecorder {
	c.t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "badpass"})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestJobsheetsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobsheets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMutationRequiresCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	client := newTestClient(t, api, "admin", "admin123")

	client.csrf = ""
	rec := client.do(http.MethodPost, "/api/v1/customers", map[string]string{"name": "Tanpa CSRF"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", rec.Code)
	}
}

func TestJobsheetItemFlow(t *testing.T) {
	api := newTestAPI(t)
	client := newTestClient(t, api, "admin", "admin123")

	rec := client.do(http.MethodPost, "/api/v1/jobsheets", map[string]string{
		"customer_id": "cus-budi",
		"vehicle_id":  "veh-budi-avanza",
		"notes":       "ganti kampas rem",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create jobsheet: %d %s", rec.Code, rec.Body.String())
	}
	jobsheetID := decodeBody(t, rec)["jobsheet"].(map[string]any)["id"].(string)

	itemsPath := fmt.Sprintf("/api/v1/jobsheets/%s/items", jobsheetID)
	rec = client.do(http.MethodPost, itemsPath, map[string]any{
		"jobsheet_id": jobsheetID,
		"product_id":  "prod-kampas-rem",
		"qty":         2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: %d %s", rec.Code, rec.Body.String())
	}
	item := decodeBody(t, rec)["item"].(map[string]any)
	if item["price_cents"].(float64) != 2600000 {
		t.Fatalf("expected default price 2600000, got %v", item["price_cents"])
	}

	// Seeded stock is 12; asking for 20 more must hit the stock guard.
	rec = client.do(http.MethodPost, itemsPath, map[string]any{
		"jobsheet_id": jobsheetID,
		"product_id":  "prod-kampas-rem",
		"qty":         20,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d %s", rec.Code, rec.Body.String())
	}

	rec = client.do(http.MethodGet, "/api/v1/jobsheets/"+jobsheetID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get detail: %d %s", rec.Code, rec.Body.String())
	}
	detail := decodeBody(t, rec)
	jobsheet := detail["jobsheet"].(map[string]any)
	if jobsheet["total_amount_cents"].(float64) != 2*2600000 {
		t.Fatalf("expected total %d, got %v", 2*2600000, jobsheet["total_amount_cents"])
	}

	itemID := item["id"].(string)
	rec = client.do(http.MethodDelete, itemsPath+"/"+itemID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete item: %d %s", rec.Code, rec.Body.String())
	}

	rec = client.do(http.MethodGet, "/api/v1/products/prod-kampas-rem", nil)
	product := decodeBody(t, rec)["product"].(map[string]any)
	if product["stock"].(float64) != 12 {
		t.Fatalf("expected stock restored to 12, got %v", product["stock"])
	}
}

func TestDeleteJobsheetForbiddenForMechanic(t *testing.T) {
	api := newTestAPI(t)
	admin := newTestClient(t, api, "admin", "admin123")

	rec := admin.do(http.MethodPost, "/api/v1/jobsheets", map[string]string{
		"customer_id": "cus-budi",
		"vehicle_id":  "veh-budi-avanza",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create jobsheet: %d %s", rec.Code, rec.Body.String())
	}
	jobsheetID := decodeBody(t, rec)["jobsheet"].(map[string]any)["id"].(string)

	mechanic := newTestClient(t, api, "agus", "bengkel1")
	rec = mechanic.do(http.MethodDelete, "/api/v1/jobsheets/"+jobsheetID, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for mechanic delete, got %d %s", rec.Code, rec.Body.String())
	}

	rec = admin.do(http.MethodDelete, "/api/v1/jobsheets/"+jobsheetID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin delete to succeed, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAppointmentConvertEndpoint(t *testing.T) {
	api := newTestAPI(t)
	client := newTestClient(t, api, "admin", "admin123")

	rec := client.do(http.MethodPost, "/api/v1/appointments/apt-budi-servis/convert", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("convert appointment: %d %s", rec.Code, rec.Body.String())
	}
	jobsheet := decodeBody(t, rec)["jobsheet"].(map[string]any)
	if jobsheet["state"] != "pending" {
		t.Fatalf("expected pending jobsheet, got %v", jobsheet["state"])
	}

	rec = client.do(http.MethodPost, "/api/v1/appointments/apt-budi-servis/convert", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 converting twice, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownJobsheetReturns404(t *testing.T) {
	api := newTestAPI(t)
	client := newTestClient(t, api, "admin", "admin123")

	rec := client.do(http.MethodGet, "/api/v1/jobsheets/js-absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", rec.Code, rec.Body.String())
	}
}
