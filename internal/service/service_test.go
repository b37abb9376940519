package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	commits   int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr == nil {
		m.commits++
	}
	return m.commitErr
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

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockStore implements Store over in-memory maps. Writes land directly in the
// maps (the mock has no rollback), so tests that expect a failed mutation
// check that nothing was committed instead. The *Fn fields override single
// methods.
type mockStore struct {
	customers map[uuid.UUID]database.Customer
	orders    map[uuid.UUID]database.Order
	payments  []database.Payment

	customerSeq int32
	billSeq     int32

	createOrderFn       func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	nextBillNumberFn    func(ctx context.Context, companyID uuid.UUID, yearPrefix string) (int32, error)
	updateOrderStatusFn func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	createPaymentFn     func(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
}

func newMockStore() *mockStore {
	return &mockStore{
		customers: map[uuid.UUID]database.Customer{},
		orders:    map[uuid.UUID]database.Order{},
	}
}

func (m *mockStore) GetCustomer(ctx context.Context, arg database.GetCustomerParams) (database.Customer, error) {
	c, ok := m.customers[arg.ID]
	if !ok || c.CompanyID != arg.CompanyID {
		return database.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *mockStore) NextCustomerNumber(ctx context.Context, companyID uuid.UUID) (int32, error) {
	return m.customerSeq + 1, nil
}

func (m *mockStore) CreateCustomer(ctx context.Context, arg database.CreateCustomerParams) (database.Customer, error) {
	m.customerSeq++
	c := database.Customer{
		ID:        uuid.New(),
		CompanyID: arg.CompanyID,
		DisplayID: arg.DisplayID,
		Name:      arg.Name,
		Mobile:    arg.Mobile,
		Location:  arg.Location,
		IsActive:  true,
	}
	m.customers[c.ID] = c
	return c, nil
}

func (m *mockStore) NextBillNumber(ctx context.Context, companyID uuid.UUID, yearPrefix string) (int32, error) {
	if m.nextBillNumberFn != nil {
		return m.nextBillNumberFn(ctx, companyID, yearPrefix)
	}
	return m.billSeq + 1, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, arg)
	}
	m.billSeq++
	o := database.Order{
		ID:           uuid.New(),
		CompanyID:    arg.CompanyID,
		CustomerID:   arg.CustomerID,
		BillNo:       arg.BillNo,
		OrderedOn:    arg.OrderedOn,
		DeliveryDate: arg.DeliveryDate,
		Items:        arg.Items,
		Advance:      arg.Advance,
		TotalAmount:  arg.TotalAmount,
		Balance:      arg.Balance,
		Status:       arg.Status,
		Notes:        arg.Notes,
		CreatedBy:    arg.CreatedBy,
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || o.CompanyID != arg.CompanyID {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockStore) GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	return m.GetOrder(ctx, arg)
}

func (m *mockStore) UpdateOrderItems(ctx context.Context, arg database.UpdateOrderItemsParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Items = arg.Items
	o.TotalAmount = arg.TotalAmount
	o.Balance = arg.Balance
	o.Status = arg.Status
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, arg)
	}
	o, ok := m.orders[arg.ID]
	if !ok || o.CompanyID != arg.CompanyID || o.Status != arg.From {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockStore) DeleteOrder(ctx context.Context, arg database.GetOrderParams) (uuid.UUID, error) {
	if _, err := m.GetOrder(ctx, arg); err != nil {
		return uuid.Nil, err
	}
	delete(m.orders, arg.ID)
	return arg.ID, nil
}

func (m *mockStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	if m.createPaymentFn != nil {
		return m.createPaymentFn(ctx, arg)
	}
	p := database.Payment{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		CustomerID: arg.CustomerID,
		CompanyID:  arg.CompanyID,
		Amount:     arg.Amount,
		Mode:       arg.Mode,
		PaidOn:     arg.PaidOn,
		Type:       arg.Type,
		CreatedBy:  arg.CreatedBy,
	}
	m.payments = append(m.payments, p)
	return p, nil
}

func (m *mockStore) GetPayment(ctx context.Context, arg database.GetPaymentParams) (database.Payment, error) {
	for _, p := range m.payments {
		if p.ID == arg.ID && p.OrderID == arg.OrderID {
			return p, nil
		}
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (m *mockStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
	var out []database.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) UpdatePayment(ctx context.Context, arg database.UpdatePaymentParams) (database.Payment, error) {
	for i, p := range m.payments {
		if p.ID == arg.ID && p.OrderID == arg.OrderID {
			p.Amount = arg.Amount
			p.Mode = arg.Mode
			p.PaidOn = arg.PaidOn
			m.payments[i] = p
			return p, nil
		}
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (m *mockStore) DeletePayment(ctx context.Context, arg database.GetPaymentParams) (uuid.UUID, error) {
	for i, p := range m.payments {
		if p.ID == arg.ID && p.OrderID == arg.OrderID {
			m.payments = append(m.payments[:i], m.payments[i+1:]...)
			return p.ID, nil
		}
	}
	return uuid.Nil, pgx.ErrNoRows
}

// recordingBroadcaster captures broadcast events.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBroadcaster) BroadcastToCompany(companyID uuid.UUID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// --- Test helpers ---

type testEnv struct {
	store  *mockStore
	tx     *mockTx
	events *recordingBroadcaster
	pool   *mockTxBeginner
}

func newTestEnv() *testEnv {
	tx := &mockTx{}
	return &testEnv{
		store:  newMockStore(),
		tx:     tx,
		events: &recordingBroadcaster{},
		pool:   &mockTxBeginner{tx: tx},
	}
}

func (e *testEnv) newStore(db database.DBTX) Store { return e.store }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func amount(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func outfit(kind, value string) database.OutfitItem {
	return database.OutfitItem{
		OutfitType: kind,
		Quantity:   1,
		Amount:     amount(value),
		Status:     enum.ItemStatusPending,
	}
}

// seedOrder stores an order with the given items and untagged payments and
// returns its key.
func (e *testEnv) seedOrder(items []database.OutfitItem, payments ...string) OrderKey {
	key := OrderKey{CompanyID: uuid.New(), OrderID: uuid.New()}
	customerID := uuid.New()
	e.store.orders[key.OrderID] = database.Order{
		ID:         key.OrderID,
		CompanyID:  key.CompanyID,
		CustomerID: customerID,
		BillNo:     "2026-0001",
		Items:      items,
		Status:     enum.OrderStatusPending,
	}
	for _, p := range payments {
		e.store.payments = append(e.store.payments, database.Payment{
			ID:         uuid.New(),
			OrderID:    key.OrderID,
			CustomerID: customerID,
			CompanyID:  key.CompanyID,
			Amount:     dec(p),
			Mode:       enum.PaymentModeCash,
		})
	}
	return key
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got)
	}
}
