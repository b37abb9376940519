package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/enum"
	"github.com/stitchbook/api/internal/ledger"
)

func twoItems() []database.OutfitItem {
	return []database.OutfitItem{outfit("Blouse", "1000"), outfit("Lehenga", "500")}
}

func TestAddItem(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems(), "300")
	svc := NewItemService(env.pool, env.newStore, env.events)

	item := outfit("Kurti", "250")
	item.Quantity = 0
	res, err := svc.AddItem(context.Background(), key, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Order.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(res.Order.Items))
	}
	if res.Order.Items[2].Quantity != 1 {
		t.Errorf("expected quantity normalized to 1, got %d", res.Order.Items[2].Quantity)
	}
	assertDecimal(t, "total", res.Order.TotalAmount, "1750")
	assertDecimal(t, "balance", res.Order.Balance, "1450")
	if len(env.events.events) != 1 || env.events.events[0] != EventOrderUpdated {
		t.Errorf("expected order.updated, got %v", env.events.events)
	}
}

func TestAddItem_Validation(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems())
	svc := NewItemService(env.pool, env.newStore, env.events)

	if _, err := svc.AddItem(context.Background(), key, database.OutfitItem{}); !errors.Is(err, ErrOutfitTypeRequired) {
		t.Errorf("expected ErrOutfitTypeRequired, got %v", err)
	}
	neg := outfit("Kurti", "-5")
	if _, err := svc.AddItem(context.Background(), key, neg); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
	if _, err := svc.AddItem(context.Background(), key, outfit("Kurti", "100.005")); !errors.Is(err, ErrAmountPrecision) {
		t.Errorf("expected ErrAmountPrecision, got %v", err)
	}
	cancelled := outfit("Kurti", "5")
	cancelled.Status = enum.ItemStatusCancelled
	if _, err := svc.AddItem(context.Background(), key, cancelled); !errors.Is(err, ErrUseCancel) {
		t.Errorf("expected ErrUseCancel, got %v", err)
	}
	if env.tx.commits != 0 {
		t.Errorf("expected no commits, got %d", env.tx.commits)
	}
}

func TestUpdateItem_KeepsStatus(t *testing.T) {
	env := newTestEnv()
	items := twoItems()
	items[0].Status = enum.ItemStatusTrial
	key := env.seedOrder(items)
	svc := NewItemService(env.pool, env.newStore, env.events)

	edit := outfit("Blouse", "1200")
	edit.Status = ""
	res, err := svc.UpdateItem(context.Background(), key, 0, edit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Items[0].Status != enum.ItemStatusTrial {
		t.Errorf("expected status Trial kept, got %s", res.Order.Items[0].Status)
	}
	assertDecimal(t, "total", res.Order.TotalAmount, "1700")
}

func TestUpdateItem_CancelledItem(t *testing.T) {
	env := newTestEnv()
	items := twoItems()
	items[1].Status = enum.ItemStatusCancelled
	key := env.seedOrder(items)
	svc := NewItemService(env.pool, env.newStore, env.events)

	_, err := svc.UpdateItem(context.Background(), key, 1, outfit("Lehenga", "900"))
	if !errors.Is(err, ErrItemCancelled) {
		t.Fatalf("expected ErrItemCancelled, got %v", err)
	}
}

func TestUpdateItem_IndexOutOfRange(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems())
	svc := NewItemService(env.pool, env.newStore, env.events)

	_, err := svc.UpdateItem(context.Background(), key, 5, outfit("Lehenga", "900"))
	if !errors.Is(err, ledger.ErrItemIndex) {
		t.Fatalf("expected ErrItemIndex, got %v", err)
	}
}

func TestUpdateItemStatus(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems())
	svc := NewItemService(env.pool, env.newStore, env.events)

	res, err := svc.UpdateItemStatus(context.Background(), key, 1, enum.ItemStatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Items[1].Status != enum.ItemStatusCompleted {
		t.Errorf("expected Completed, got %s", res.Order.Items[1].Status)
	}
	if res.Order.Items[0].Status != enum.ItemStatusPending {
		t.Errorf("other item changed: %s", res.Order.Items[0].Status)
	}

	if _, err := svc.UpdateItemStatus(context.Background(), key, 1, enum.ItemStatusCancelled); !errors.Is(err, ErrUseCancel) {
		t.Errorf("expected ErrUseCancel, got %v", err)
	}
}

func TestPreviewCancel_DoesNotWrite(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems(), "1600")
	svc := NewItemService(env.pool, env.newStore, env.events)

	out, err := svc.PreviewCancel(context.Background(), key, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "after total", out.After.ActiveTotal, "1000")
	assertDecimal(t, "refund", out.Refund(), "600")
	if env.store.orders[key.OrderID].Items[1].Status != enum.ItemStatusPending {
		t.Error("preview changed the stored item")
	}
	if env.tx.commits != 0 {
		t.Errorf("expected no commits, got %d", env.tx.commits)
	}
}

func TestCancelItem(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems(), "300")
	svc := NewItemService(env.pool, env.newStore, env.events)

	res, err := svc.CancelItem(context.Background(), key, 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "total", res.Order.TotalAmount, "1000")
	assertDecimal(t, "balance", res.Order.Balance, "700")
	if res.Order.Items[1].Status != enum.ItemStatusCancelled {
		t.Errorf("expected item cancelled, got %s", res.Order.Items[1].Status)
	}
	if res.Order.Items[0].Status != enum.ItemStatusPending {
		t.Errorf("other item changed: %s", res.Order.Items[0].Status)
	}
	if res.Order.Status != enum.OrderStatusPending {
		t.Errorf("order status changed: %s", res.Order.Status)
	}
	if res.Outcome.LastActive {
		t.Error("expected LastActive false")
	}

	if _, err := svc.CancelItem(context.Background(), key, 1, false); !errors.Is(err, ledger.ErrAlreadyCancelled) {
		t.Errorf("expected ErrAlreadyCancelled, got %v", err)
	}
}

func TestCancelItem_Overpaid(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems(), "1000", "600")
	svc := NewItemService(env.pool, env.newStore, env.events)

	res, err := svc.CancelItem(context.Background(), key, 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "balance", res.Order.Balance, "-600")
	if !res.Outcome.RefundDue() {
		t.Error("expected refund due")
	}
	assertDecimal(t, "refund", res.Outcome.Refund(), "600")
}

func TestCancelItem_LastActive(t *testing.T) {
	env := newTestEnv()
	items := twoItems()
	items[0].Status = enum.ItemStatusCancelled
	key := env.seedOrder(items)
	svc := NewItemService(env.pool, env.newStore, env.events)

	res, err := svc.CancelItem(context.Background(), key, 1, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Outcome.LastActive {
		t.Error("expected LastActive")
	}
	if res.Order.Status != enum.OrderStatusCancelled {
		t.Errorf("expected order Cancelled, got %s", res.Order.Status)
	}

	if _, err := svc.AddItem(context.Background(), key, outfit("Kurti", "100")); !errors.Is(err, ErrOrderCancelled) {
		t.Errorf("expected ErrOrderCancelled on cancelled order, got %v", err)
	}
}

func TestCancelItem_LastActiveKeepOrderOpen(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder([]database.OutfitItem{outfit("Blouse", "1000")})
	svc := NewItemService(env.pool, env.newStore, env.events)

	res, err := svc.CancelItem(context.Background(), key, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Status != enum.OrderStatusPending {
		t.Errorf("expected order to stay Pending, got %s", res.Order.Status)
	}
	assertDecimal(t, "total", res.Order.TotalAmount, "0")
}

func TestCancelItem_SettlesPaymentStatus(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems(), "1000")
	o := env.store.orders[key.OrderID]
	o.Status = enum.OrderStatusPartial
	env.store.orders[key.OrderID] = o
	svc := NewItemService(env.pool, env.newStore, env.events)

	res, err := svc.CancelItem(context.Background(), key, 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Status != enum.OrderStatusPaid {
		t.Errorf("expected Paid once the balance is zero, got %s", res.Order.Status)
	}
}

func TestDeleteItem(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems())
	svc := NewItemService(env.pool, env.newStore, env.events)

	res, err := svc.DeleteItem(context.Background(), key, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Order.Items) != 1 || res.Order.Items[0].OutfitType != "Lehenga" {
		t.Fatalf("unexpected items: %+v", res.Order.Items)
	}
	assertDecimal(t, "total", res.Order.TotalAmount, "500")

	if _, err := svc.DeleteItem(context.Background(), key, 0); !errors.Is(err, ErrLastItem) {
		t.Errorf("expected ErrLastItem, got %v", err)
	}
}

func TestItemService_OrderNotFound(t *testing.T) {
	env := newTestEnv()
	key := env.seedOrder(twoItems())
	key.OrderID = key.CompanyID
	svc := NewItemService(env.pool, env.newStore, env.events)

	if _, err := svc.AddItem(context.Background(), key, outfit("Kurti", "1")); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("AddItem: expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.PreviewCancel(context.Background(), key, 0); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("PreviewCancel: expected ErrOrderNotFound, got %v", err)
	}
}
