//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stitchbook/api/internal/config"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/media"
	"github.com/stitchbook/api/internal/otp"
	"github.com/stitchbook/api/internal/router"
	"github.com/stitchbook/api/internal/wizard"
	"github.com/stitchbook/api/internal/ws"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestIntegrationFlow exercises the API against a real PostgreSQL database:
// sign up, open a boutique, book an order, take a payment, cancel an item
// and print the bill.
func TestIntegrationFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:            "8081",
		DatabaseURL:     connStr,
		JWTSecret:       "integration-test-secret",
		CORSOrigins:     "*",
		MasterPassword:  "integration-master",
		LegacyPINSuffix: "00",
	}
	hub := ws.NewHub()
	go hub.Run(ctx)

	r := router.New(router.Deps{
		Config:   cfg,
		Queries:  database.New(pool),
		Pool:     pool,
		Hub:      hub,
		Media:    media.NewMemoryStore("http://media.test"),
		OTP:      otp.NewDevSender(),
		Sessions: wizard.NewSessions(),
	})

	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Register the owner ---
	reg := httpJSON(t, server, "POST", "/auth/register", map[string]interface{}{
		"full_name": "Meera Tailor",
		"email":     "meera@test.com",
		"phone":     "+91 98765 43210",
		"pin":       "4321",
	}, "", http.StatusCreated)
	token := reg["access_token"].(string)
	if user := reg["user"].(map[string]interface{}); user["company_id"] != nil {
		t.Fatalf("new user company_id: got %v, want nil", user["company_id"])
	}

	// Signed in, but not yet attached to a company
	httpJSON(t, server, "GET", "/auth/me", nil, token, http.StatusOK)

	// --- 2. Open the boutique; the response carries fresh tokens ---
	created := httpJSON(t, server, "POST", "/companies", map[string]interface{}{
		"name":  "Meera Boutique",
		"phone": "9876543210",
	}, token, http.StatusCreated)
	token = created["access_token"].(string)
	companyID := created["company"].(map[string]interface{})["id"].(string)
	base := "/companies/" + companyID

	// A second company is refused
	httpJSON(t, server, "POST", "/companies", map[string]interface{}{"name": "Again"}, token, http.StatusConflict)

	// --- 3. PIN login finds the same account ---
	login := httpJSON(t, server, "POST", "/auth/pin-login", map[string]interface{}{
		"phone": "9876543210",
		"pin":   "4321",
	}, "", http.StatusOK)
	if got := login["user"].(map[string]interface{})["company_id"]; got != companyID {
		t.Fatalf("login company_id: got %v, want %s", got, companyID)
	}

	// --- 4. Book an order for a new customer with an advance ---
	order := httpJSON(t, server, "POST", base+"/orders", map[string]interface{}{
		"customer":      map[string]interface{}{"name": "Asha", "mobile": "9123456780", "location": "Anna Nagar"},
		"ordered_on":    "2026-03-14",
		"delivery_date": "2026-03-28",
		"advance":       "500",
		"advance_mode":  "Cash",
		"items": []map[string]interface{}{
			{"outfit_type": "Blouse", "quantity": 1, "amount": "1000", "measurements": map[string]string{"chest": "34"}},
			{"outfit_type": "Salwar", "quantity": 1, "amount": "600"},
		},
	}, token, http.StatusCreated)
	orderID := order["id"].(string)

	if got := order["bill_no"].(string); got != "2026-0001" {
		t.Fatalf("bill_no: got %s, want 2026-0001", got)
	}
	if got := order["total_amount"].(string); got != "1600.00" {
		t.Fatalf("total_amount: got %s, want 1600.00", got)
	}
	if got := order["balance"].(string); got != "1100.00" {
		t.Fatalf("balance after advance: got %s, want 1100.00", got)
	}
	customerID := order["customer"].(map[string]interface{})["id"].(string)

	// --- 5. Take a payment ---
	paid := httpJSON(t, server, "POST", base+"/orders/"+orderID+"/payments", map[string]interface{}{
		"amount":  "400",
		"mode":    "UPI",
		"paid_on": "2026-03-20",
	}, token, http.StatusCreated)
	summary := paid["summary"].(map[string]interface{})
	if got := summary["balance"].(string); got != "700.00" {
		t.Fatalf("balance after payment: got %s, want 700.00", got)
	}
	if got := summary["payment_state"].(string); got != "Partial" {
		t.Fatalf("payment_state: got %s, want Partial", got)
	}
	if got := len(paid["payments"].([]interface{})); got != 2 {
		t.Fatalf("payments: got %d, want 2", got)
	}

	// --- 6. Preview, then cancel the blouse ---
	preview := httpJSON(t, server, "GET", base+"/orders/"+orderID+"/items/0/cancel-preview", nil, token, http.StatusOK)
	if preview["refund_due"] != true || preview["refund"].(string) != "300.00" {
		t.Fatalf("preview: got refund_due=%v refund=%v, want true 300.00", preview["refund_due"], preview["refund"])
	}

	cancelled := httpJSON(t, server, "POST", base+"/orders/"+orderID+"/items/0/cancel", nil, token, http.StatusOK)
	if got := cancelled["total_amount"].(string); got != "600.00" {
		t.Fatalf("total after cancel: got %s, want 600.00", got)
	}
	item := cancelled["items"].([]interface{})[0].(map[string]interface{})
	if item["status"].(string) != "Cancelled" {
		t.Fatalf("item status: got %v, want Cancelled", item["status"])
	}

	// Cancelling the last active item with the flag set cancels the order
	last := httpJSON(t, server, "POST", base+"/orders/"+orderID+"/items/1/cancel", map[string]interface{}{
		"cancel_order": true,
	}, token, http.StatusOK)
	if got := last["status"].(string); got != "Cancelled" {
		t.Fatalf("order status: got %s, want Cancelled", got)
	}
	if got := last["summary"].(map[string]interface{})["refund"].(string); got != "900.00" {
		t.Fatalf("refund after cancelling the order: got %s, want 900.00", got)
	}

	// Payments cannot be added to a cancelled order
	httpJSON(t, server, "POST", base+"/orders/"+orderID+"/payments", map[string]interface{}{
		"amount": "100", "mode": "Cash",
	}, token, http.StatusConflict)

	// --- 7. A second order for the same customer takes the next bill number ---
	second := httpJSON(t, server, "POST", base+"/orders", map[string]interface{}{
		"customer":   map[string]interface{}{"id": customerID},
		"ordered_on": "2026-04-01",
		"items":      []map[string]interface{}{{"outfit_type": "Kurti", "quantity": 2, "rate": "350"}},
	}, token, http.StatusCreated)
	if got := second["bill_no"].(string); got != "2026-0002" {
		t.Fatalf("second bill_no: got %s, want 2026-0002", got)
	}
	if got := second["total_amount"].(string); got != "700.00" {
		t.Fatalf("second total: got %s, want 700.00", got)
	}

	// --- 8. Listing by customer returns both orders ---
	list := httpJSON(t, server, "GET", base+"/customers/"+customerID+"/orders", nil, token, http.StatusOK)
	if got := len(list["orders"].([]interface{})); got != 2 {
		t.Fatalf("customer orders: got %d, want 2", got)
	}

	// --- 9. The bill renders with the order's number ---
	html := httpGetText(t, server, base+"/orders/"+orderID+"/invoice", token)
	if !strings.Contains(html, "2026-0001") || !strings.Contains(html, "Meera Boutique") {
		t.Fatalf("invoice missing bill number or company name")
	}

	// --- 10. Other companies cannot see this one ---
	other := httpJSON(t, server, "POST", "/auth/register", map[string]interface{}{
		"full_name": "Ravi",
		"email":     "ravi@test.com",
		"phone":     "9000011111",
		"pin":       "1111",
	}, "", http.StatusCreated)
	httpJSON(t, server, "GET", base+"/orders/"+orderID, nil, other["access_token"].(string), http.StatusForbidden)
}

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stitchbook_test"),
		tcpostgres.WithUsername("stitchbook"),
		tcpostgres.WithPassword("stitchbook"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return connStr, cleanup
}

// httpJSON sends body as JSON and decodes the JSON response, failing the test
// when the status is not want.
func httpJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string, want int) map[string]interface{} {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d, body: %v", method, path, resp.StatusCode, want, result)
	}
	return result
}

func httpGetText(t *testing.T, server *httptest.Server, path, token string) string {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d, body: %s", path, resp.StatusCode, b)
	}
	return string(b)
}
