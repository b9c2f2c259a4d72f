package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bengkelinaja/internal/cache"
	"bengkelinaja/internal/domain"
	"bengkelinaja/internal/store"
	"bengkelinaja/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), cache.NoopJobsheetCache{}, 5*time.Second)
}

type fixture struct {
	product  domain.Product
	jobsheet domain.Jobsheet
}

func seedJobsheet(t *testing.T, svc *Service, stock int, saleCents int64) fixture {
	t.Helper()
	ctx := adminCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU:       "OLI-10W40",
		Name:      "Oli Mesin 10W-40",
		Stock:     stock,
		CostCents: saleCents / 2,
		SaleCents: saleCents,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Budi Santoso", Phone: "081234567890"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	vehicle, err := svc.CreateVehicle(ctx, domain.VehicleCreateRequest{
		CustomerID: customer.ID,
		Plate:      "B 1075 KJT",
		Brand:      "Toyota",
		Model:      "Avanza",
		Year:       2019,
	})
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}
	jobsheet, err := svc.CreateJobsheet(ctx, domain.JobsheetCreateRequest{
		CustomerID: customer.ID,
		VehicleID:  vehicle.ID,
		Notes:      "servis berkala",
	})
	if err != nil {
		t.Fatalf("create jobsheet: %v", err)
	}

	return fixture{product: product, jobsheet: jobsheet}
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func TestAddItemReservesStockAndDefaultsPrice(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 750000)
	ctx := adminCtx()

	item, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if item.PriceCents != 750000 {
		t.Fatalf("expected default price 750000, got %d", item.PriceCents)
	}

	product, err := svc.GetProduct(ctx, fx.product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 7 {
		t.Fatalf("expected stock 7 after add, got %d", product.Stock)
	}

	detail, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Jobsheet.TotalAmountCents != 3*750000 {
		t.Fatalf("expected total %d, got %d", 3*750000, detail.Jobsheet.TotalAmountCents)
	}
}

func TestAddItemInsufficientStockRollsBack(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 2, 500000)
	ctx := adminCtx()

	_, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        5,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, err := svc.GetProduct(ctx, fx.product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", product.Stock)
	}
	detail, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if len(detail.Items) != 0 || detail.Jobsheet.TotalAmountCents != 0 {
		t.Fatalf("expected no items and zero total after failed add, got %d items total %d", len(detail.Items), detail.Jobsheet.TotalAmountCents)
	}
}

func TestConcurrentAddItemAdmitsExactlyOne(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 5, 100000)
	ctx := adminCtx()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = svc.AddItem(ctx, domain.ItemAddRequest{
				JobsheetID: fx.jobsheet.ID,
				ProductID:  fx.product.ID,
				Qty:        5,
			})
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one success and one stock rejection, got %d/%d", succeeded, rejected)
	}

	product, err := svc.GetProduct(ctx, fx.product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("expected stock 0 after winning add, got %d", product.Stock)
	}
}

func TestDeleteItemRestoresStock(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 420000)
	ctx := adminCtx()

	item, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	product, _ := svc.GetProduct(ctx, fx.product.ID)
	if product.Stock != 7 {
		t.Fatalf("expected stock 7 after add, got %d", product.Stock)
	}

	if err := svc.DeleteItem(ctx, fx.jobsheet.ID, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	product, _ = svc.GetProduct(ctx, fx.product.ID)
	if product.Stock != 10 {
		t.Fatalf("expected stock 10 after delete, got %d", product.Stock)
	}
	detail, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Jobsheet.TotalAmountCents != 0 {
		t.Fatalf("expected total 0 after delete, got %d", detail.Jobsheet.TotalAmountCents)
	}
}

func TestUpdateItemQtyBeyondStockFails(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 5, 100000)
	ctx := adminCtx()

	item, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	// Stock is 2; raising qty from 3 to 6 needs 3 more.
	_, err = svc.UpdateItem(ctx, item.ID, domain.ItemUpdateRequest{Qty: 6, PriceCents: 100000})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	detail, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Items[0].Qty != 3 {
		t.Fatalf("expected qty unchanged at 3, got %d", detail.Items[0].Qty)
	}
	product, _ := svc.GetProduct(ctx, fx.product.ID)
	if product.Stock != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", product.Stock)
	}

	// Lowering qty hands stock back.
	updated, err := svc.UpdateItem(ctx, item.ID, domain.ItemUpdateRequest{Qty: 1, PriceCents: 100000})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.Qty != 1 {
		t.Fatalf("expected qty 1, got %d", updated.Qty)
	}
	product, _ = svc.GetProduct(ctx, fx.product.ID)
	if product.Stock != 4 {
		t.Fatalf("expected stock 4 after decrease, got %d", product.Stock)
	}
}

func TestLaborCompletionTogglesTotal(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 100000)
	ctx := adminCtx()

	entry, err := svc.AddLabor(ctx, domain.LaborAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		Description: "Ganti oli mesin",
		PriceCents:  10000,
	})
	if err != nil {
		t.Fatalf("add labor: %v", err)
	}

	detail, _ := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if detail.Jobsheet.TotalAmountCents != 0 {
		t.Fatalf("pending labor must not count, got total %d", detail.Jobsheet.TotalAmountCents)
	}

	completed := true
	updated, err := svc.UpdateLabor(ctx, entry.ID, domain.LaborUpdateRequest{IsCompleted: &completed})
	if err != nil {
		t.Fatalf("complete labor: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	detail, _ = svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if detail.Jobsheet.TotalAmountCents != 10000 {
		t.Fatalf("expected total 10000 after completion, got %d", detail.Jobsheet.TotalAmountCents)
	}

	newPrice := int64(5000)
	if _, err := svc.UpdateLabor(ctx, entry.ID, domain.LaborUpdateRequest{PriceCents: &newPrice}); err != nil {
		t.Fatalf("reprice labor: %v", err)
	}
	detail, _ = svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if detail.Jobsheet.TotalAmountCents != 5000 {
		t.Fatalf("expected total 5000 after reprice, got %d", detail.Jobsheet.TotalAmountCents)
	}

	notCompleted := false
	if _, err := svc.UpdateLabor(ctx, entry.ID, domain.LaborUpdateRequest{IsCompleted: &notCompleted}); err != nil {
		t.Fatalf("reopen labor: %v", err)
	}
	detail, _ = svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if detail.Jobsheet.TotalAmountCents != 0 {
		t.Fatalf("expected total 0 after reopening labor, got %d", detail.Jobsheet.TotalAmountCents)
	}
}

func TestCompletingZeroPriceLaborFails(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 100000)
	ctx := adminCtx()

	entry, err := svc.AddLabor(ctx, domain.LaborAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		Description: "Cek rem",
		PriceCents:  0,
	})
	if err != nil {
		t.Fatalf("add labor: %v", err)
	}

	completed := true
	if _, err := svc.UpdateLabor(ctx, entry.ID, domain.LaborUpdateRequest{IsCompleted: &completed}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation completing zero-price labor, got %v", err)
	}
}

func TestPaymentBalance(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 100000)
	ctx := adminCtx()

	if _, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        3,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	payment, err := svc.AddPayment(ctx, domain.PaymentAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		AmountCents: 150000,
		Method:      domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if payment.PaymentDate.IsZero() {
		t.Fatalf("expected payment date to default to now")
	}

	detail, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.TotalPaymentsCents != 150000 {
		t.Fatalf("expected payments total 150000, got %d", detail.TotalPaymentsCents)
	}
	if detail.BalanceCents != 300000-150000 {
		t.Fatalf("expected balance 150000, got %d", detail.BalanceCents)
	}

	if _, err := svc.AddPayment(ctx, domain.PaymentAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		AmountCents: 150000,
		Method:      "voucher",
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown method, got %v", err)
	}
}

func TestDeleteJobsheetCascadesAndRestocks(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 100000)
	ctx := adminCtx()

	if _, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        4,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := svc.AddLabor(ctx, domain.LaborAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		Description: "Tune up",
		PriceCents:  50000,
		IsCompleted: true,
	}); err != nil {
		t.Fatalf("add labor: %v", err)
	}
	if _, err := svc.AddPayment(ctx, domain.PaymentAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		AmountCents: 100000,
		Method:      domain.PaymentMethodTransfer,
	}); err != nil {
		t.Fatalf("add payment: %v", err)
	}

	if err := svc.DeleteJobsheet(ctx, fx.jobsheet.ID); err != nil {
		t.Fatalf("delete jobsheet: %v", err)
	}

	product, _ := svc.GetProduct(ctx, fx.product.ID)
	if product.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", product.Stock)
	}
	if _, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.DeleteJobsheet(ctx, fx.jobsheet.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestConvertAppointmentOnce(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Siti Rahma"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	vehicle, err := svc.CreateVehicle(ctx, domain.VehicleCreateRequest{
		CustomerID: customer.ID,
		Plate:      "D 4431 XY",
		Brand:      "Honda",
		Model:      "Brio",
		Year:       2021,
	})
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}
	appointment, err := svc.CreateAppointment(ctx, domain.AppointmentCreateRequest{
		CustomerID:  customer.ID,
		VehicleID:   vehicle.ID,
		ScheduledAt: time.Now().Add(48 * time.Hour),
		Notes:       "bunyi dari roda depan",
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}

	jobsheet, err := svc.ConvertAppointment(ctx, appointment.ID)
	if err != nil {
		t.Fatalf("convert appointment: %v", err)
	}
	if jobsheet.State != domain.JobsheetStatePending {
		t.Fatalf("expected pending jobsheet, got %s", jobsheet.State)
	}
	if jobsheet.CustomerID != customer.ID || jobsheet.VehicleID != vehicle.ID {
		t.Fatalf("jobsheet does not carry appointment customer/vehicle")
	}

	if _, err := svc.ConvertAppointment(ctx, appointment.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation on second conversion, got %v", err)
	}

	listed, err := svc.ListAppointments(ctx, domain.AppointmentStatusConverted)
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if len(listed) != 1 || listed[0].JobsheetID != jobsheet.ID {
		t.Fatalf("expected converted appointment linked to jobsheet")
	}
}

func TestJobsheetStateTransitions(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 100000)
	ctx := adminCtx()

	updated, err := svc.UpdateJobsheetState(ctx, fx.jobsheet.ID, domain.JobsheetStateRequest{State: domain.JobsheetStateInProgress})
	if err != nil {
		t.Fatalf("update state: %v", err)
	}
	if updated.State != domain.JobsheetStateInProgress {
		t.Fatalf("expected in_progress, got %s", updated.State)
	}

	if _, err := svc.UpdateJobsheetState(ctx, fx.jobsheet.ID, domain.JobsheetStateRequest{State: "shipped"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown state, got %v", err)
	}
}

func TestDeleteJobsheetRequiresAdmin(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 100000)

	mechanicCtx := WithActor(context.Background(), domain.Actor{Username: "agus", Role: "mechanic"})
	if err := svc.DeleteJobsheet(mechanicCtx, fx.jobsheet.ID); err == nil {
		t.Fatalf("expected mechanic delete to be rejected")
	}
	if _, err := svc.GetJobsheetDetail(mechanicCtx, fx.jobsheet.ID); err != nil {
		t.Fatalf("jobsheet should survive rejected delete: %v", err)
	}
}

func TestSecondDeleteOfChildRowsReturnsNotFound(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 200000)
	ctx := adminCtx()

	item, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	entry, err := svc.AddLabor(ctx, domain.LaborAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		Description: "ganti oli",
		PriceCents:  50000,
		IsCompleted: true,
	})
	if err != nil {
		t.Fatalf("add labor: %v", err)
	}
	payment, err := svc.AddPayment(ctx, domain.PaymentAddRequest{
		JobsheetID:  fx.jobsheet.ID,
		AmountCents: 100000,
		Method:      "cash",
	})
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}

	if err := svc.DeleteItem(ctx, fx.jobsheet.ID, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if err := svc.DeleteItem(ctx, fx.jobsheet.ID, item.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second item delete, got %v", err)
	}

	if err := svc.DeleteLabor(ctx, fx.jobsheet.ID, entry.ID); err != nil {
		t.Fatalf("delete labor: %v", err)
	}
	if err := svc.DeleteLabor(ctx, fx.jobsheet.ID, entry.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second labor delete, got %v", err)
	}

	if err := svc.DeletePayment(ctx, fx.jobsheet.ID, payment.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	if err := svc.DeletePayment(ctx, fx.jobsheet.ID, payment.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second payment delete, got %v", err)
	}

	product, err := svc.GetProduct(ctx, fx.product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", product.Stock)
	}
	detail, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Jobsheet.TotalAmountCents != 0 || detail.BalanceCents != 0 {
		t.Fatalf("expected empty jobsheet after deletes, total=%d balance=%d",
			detail.Jobsheet.TotalAmountCents, detail.BalanceCents)
	}
}

func TestDeleteItemScopedToOwningJobsheet(t *testing.T) {
	svc := newTestService()
	fx := seedJobsheet(t, svc, 10, 300000)
	ctx := adminCtx()

	other, err := svc.CreateJobsheet(ctx, domain.JobsheetCreateRequest{
		CustomerID: fx.jobsheet.CustomerID,
		VehicleID:  fx.jobsheet.VehicleID,
		Notes:      "tune up",
	})
	if err != nil {
		t.Fatalf("create jobsheet: %v", err)
	}

	item, err := svc.AddItem(ctx, domain.ItemAddRequest{
		JobsheetID: fx.jobsheet.ID,
		ProductID:  fx.product.ID,
		Qty:        2,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	if err := svc.DeleteItem(ctx, other.ID, item.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting through wrong jobsheet, got %v", err)
	}

	product, err := svc.GetProduct(ctx, fx.product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 8 {
		t.Fatalf("expected stock unchanged at 8, got %d", product.Stock)
	}
	detail, err := svc.GetJobsheetDetail(ctx, fx.jobsheet.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if len(detail.Items) != 1 || detail.Jobsheet.TotalAmountCents != 2*300000 {
		t.Fatalf("item should survive wrong-jobsheet delete, items=%d total=%d",
			len(detail.Items), detail.Jobsheet.TotalAmountCents)
	}
}
