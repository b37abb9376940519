package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stitchbook/api/internal/auth"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/handler"
	"github.com/stitchbook/api/internal/media"
	"github.com/stitchbook/api/internal/middleware"
)

// --- Mock transaction ---

// mockTx implements pgx.Tx. The handler only commits or rolls back; every
// query goes through the mock store.
type mockTx struct {
	committed bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

type mockTxBeginner struct {
	tx *mockTx
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, nil
}

// --- Mock store ---

type mockCompanyStore struct {
	users     map[uuid.UUID]database.User
	companies map[uuid.UUID]database.Company
}

func newMockCompanyStore() *mockCompanyStore {
	return &mockCompanyStore{
		users:     make(map[uuid.UUID]database.User),
		companies: make(map[uuid.UUID]database.Company),
	}
}

func (m *mockCompanyStore) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	u, ok := m.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockCompanyStore) CreateCompany(_ context.Context, arg database.CreateCompanyParams) (database.Company, error) {
	c := database.Company{
		ID:        uuid.New(),
		OwnerID:   arg.OwnerID,
		Name:      arg.Name,
		Address:   arg.Address,
		Phone:     arg.Phone,
		Gstin:     arg.Gstin,
		BillTerms: arg.BillTerms,
	}
	m.companies[c.ID] = c
	return c, nil
}

func (m *mockCompanyStore) GetCompany(_ context.Context, id uuid.UUID) (database.Company, error) {
	c, ok := m.companies[id]
	if !ok {
		return database.Company{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *mockCompanyStore) UpdateCompany(_ context.Context, arg database.UpdateCompanyParams) (database.Company, error) {
	c, ok := m.companies[arg.ID]
	if !ok {
		return database.Company{}, pgx.ErrNoRows
	}
	c.Name = arg.Name
	c.Address = arg.Address
	c.Phone = arg.Phone
	c.Gstin = arg.Gstin
	c.BillTerms = arg.BillTerms
	c.SignatureKey = arg.SignatureKey
	m.companies[c.ID] = c
	return c, nil
}

func (m *mockCompanyStore) SetUserCompany(_ context.Context, id, companyID uuid.UUID) (database.User, error) {
	u, ok := m.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	u.CompanyID = pgtype.UUID{Bytes: companyID, Valid: true}
	m.users[id] = u
	return u, nil
}

type companyFixture struct {
	store  *mockCompanyStore
	tx     *mockTx
	media  *media.MemoryStore
	router *chi.Mux
}

func setupCompanyFixture() *companyFixture {
	store := newMockCompanyStore()
	tx := &mockTx{}
	mediaStore := media.NewMemoryStore("http://media.test")
	h := handler.NewCompanyHandler(store, &mockTxBeginner{tx: tx}, func(database.DBTX) handler.CompanyStore { return store }, mediaStore, testSecret)

	r := chi.NewRouter()
	r.Route("/companies", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(testSecret))
			h.RegisterRoutes(r)
		})
		r.Route("/{cid}", func(r chi.Router) {
			r.Use(middleware.Authenticate(testSecret))
			r.Use(middleware.RequireCompany)
			h.RegisterCompanyRoutes(r)
		})
	})
	return &companyFixture{store: store, tx: tx, media: mediaStore, router: r}
}

// withCompany seeds a company owned by a fresh user and returns the owner's
// claims.
func (f *companyFixture) withCompany(name string) *auth.Claims {
	owner := makeTestUser(uuid.Nil)
	c := database.Company{ID: uuid.New(), OwnerID: owner.ID, Name: name, Address: "12 MG Road", Phone: "9876543210"}
	owner.CompanyID = pgtype.UUID{Bytes: c.ID, Valid: true}
	f.store.users[owner.ID] = owner
	f.store.companies[c.ID] = c
	return &auth.Claims{UserID: owner.ID, CompanyID: c.ID}
}

// --- Tests ---

func TestCompanyCreate(t *testing.T) {
	f := setupCompanyFixture()
	user := makeTestUser(uuid.Nil)
	f.store.users[user.ID] = user
	claims := &auth.Claims{UserID: user.ID}

	rr := doAuthRequest(t, f.router, "POST", "/companies", map[string]string{
		"name":    "  Meera Boutique ",
		"address": "12 MG Road",
		"phone":   "9876543210",
		"gstin":   "29ABCDE1234F1Z5",
	}, claims)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if !f.tx.committed {
		t.Error("expected the transaction to commit")
	}

	resp := decodeResponse(t, rr)
	company := resp["company"].(map[string]interface{})
	if company["name"] != "Meera Boutique" {
		t.Errorf("name: got %v, want Meera Boutique", company["name"])
	}
	if company["bill_terms"] != nil {
		t.Errorf("bill_terms: got %v, want null", company["bill_terms"])
	}

	issued, err := auth.ValidateToken(testSecret, resp["access_token"].(string))
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if issued.CompanyID.String() != company["id"] {
		t.Errorf("token company: got %s, want %v", issued.CompanyID, company["id"])
	}
	if resp["user"].(map[string]interface{})["company_id"] != company["id"] {
		t.Errorf("user company_id: got %v", resp["user"])
	}
}

func TestCompanyCreateTwice(t *testing.T) {
	f := setupCompanyFixture()
	claims := f.withCompany("Meera Boutique")

	rr := doAuthRequest(t, f.router, "POST", "/companies", map[string]string{"name": "Second Shop"}, claims)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if len(f.store.companies) != 1 {
		t.Errorf("companies: got %d, want 1", len(f.store.companies))
	}
}

func TestCompanyCreateValidation(t *testing.T) {
	f := setupCompanyFixture()
	user := makeTestUser(uuid.Nil)
	f.store.users[user.ID] = user

	rr := doAuthRequest(t, f.router, "POST", "/companies", map[string]string{"name": "   "}, &auth.Claims{UserID: user.ID})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = doAuthRequest(t, f.router, "POST", "/companies", map[string]string{"name": "Shop"}, &auth.Claims{UserID: uuid.New()})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCompanyGetAndUpdateKeepsSignature(t *testing.T) {
	f := setupCompanyFixture()
	claims := f.withCompany("Meera Boutique")
	c := f.store.companies[claims.CompanyID]
	c.SignatureKey = pgtype.Text{String: "companies/" + c.ID.String() + "/images/sig.png", Valid: true}
	f.store.companies[c.ID] = c

	rr := doAuthRequest(t, f.router, "GET", companyPath(claims, ""), nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got := decodeResponse(t, rr)["address"]; got != "12 MG Road" {
		t.Errorf("address: got %v", got)
	}

	rr = doAuthRequest(t, f.router, "PUT", companyPath(claims, ""), map[string]string{
		"name":       "Meera Designer Studio",
		"address":    "4 Brigade Road",
		"bill_terms": "No refund after stitching",
	}, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["name"] != "Meera Designer Studio" || resp["bill_terms"] != "No refund after stitching" {
		t.Errorf("updated company: got %v", resp)
	}
	if resp["signature_key"] != c.SignatureKey.String {
		t.Errorf("signature_key: got %v, want %s", resp["signature_key"], c.SignatureKey.String)
	}

	rr = doAuthRequest(t, f.router, "PUT", companyPath(claims, ""), map[string]string{"name": ""}, claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty name: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCompanyRoutesRequireOwnCompany(t *testing.T) {
	f := setupCompanyFixture()
	claims := f.withCompany("Meera Boutique")
	other := f.withCompany("Other Tailors")

	rr := doAuthRequest(t, f.router, "GET", companyPath(other, ""), nil, claims)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestCompanyUploadSignature(t *testing.T) {
	f := setupCompanyFixture()
	claims := f.withCompany("Meera Boutique")
	old := "companies/" + claims.CompanyID.String() + "/images/old.png"
	if err := f.media.Put(context.Background(), old, strings.NewReader("old"), 3, "image/png"); err != nil {
		t.Fatalf("seed media: %v", err)
	}
	c := f.store.companies[claims.CompanyID]
	c.SignatureKey = pgtype.Text{String: old, Valid: true}
	f.store.companies[c.ID] = c

	rr := doUpload(t, f.router, companyPath(claims, "/signature"), "sig.png", "png-bytes", claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	key, _ := decodeResponse(t, rr)["signature_key"].(string)
	if !media.OwnedBy(key, claims.CompanyID) || !strings.Contains(key, "/images/") {
		t.Errorf("signature_key: got %q", key)
	}
	if !f.media.Exists(key) {
		t.Error("new signature was not stored")
	}
	if f.media.Exists(old) {
		t.Error("old signature was not removed")
	}
}

func TestCompanyUploadSignatureRejectsAudio(t *testing.T) {
	f := setupCompanyFixture()
	claims := f.withCompany("Meera Boutique")

	rr := doUpload(t, f.router, companyPath(claims, "/signature"), "note.m4a", "audio", claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if f.store.companies[claims.CompanyID].SignatureKey.Valid {
		t.Error("signature should not be set")
	}
}
