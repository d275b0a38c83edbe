package workflow

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NOTE: These tests are intentionally DB-free. The FIFO ordering itself comes
// from the eligible-batch query (purchased_at, id); here the containers are
// handed over already sorted, the way AllocateStock receives them.

func testContainer(id int, qty int64, amount string, purchasedAt time.Time) *models.Container {
	a := decimal.RequireFromString(amount)
	return &models.Container{
		ID:           id,
		RoomId:       uuid.New(),
		PurchasedAt:  purchasedAt,
		TotalQty:     qty,
		RemainingQty: qty,
		Amount:       a,
		UnitPrice:    models.UnitPriceFor(a, qty),
		Status:       models.ContainerStatusAvailable,
	}
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestAllocateAcross_DepletesOldestFirst(t *testing.T) {
	b1 := testContainer(1, 10, "20.00", day(1))
	b2 := testContainer(2, 10, "30.00", day(2))

	allocations, shortfall := allocateAcross([]*models.Container{b1, b2}, 15)

	if shortfall != 0 {
		t.Fatalf("expected no shortfall, got %d", shortfall)
	}
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocations))
	}
	if allocations[0].ContainerId != 1 || allocations[0].Qty != 10 {
		t.Fatalf("expected first allocation to drain batch 1 fully, got %+v", allocations[0])
	}
	if allocations[1].ContainerId != 2 || allocations[1].Qty != 5 {
		t.Fatalf("expected second allocation of 5 from batch 2, got %+v", allocations[1])
	}
	if b1.RemainingQty != 0 {
		t.Fatalf("batch 1 remaining = %d, want 0", b1.RemainingQty)
	}
	if b2.RemainingQty != 5 {
		t.Fatalf("batch 2 remaining = %d, want 5", b2.RemainingQty)
	}
}

func TestAllocateAcross_ExactDepletion(t *testing.T) {
	b := testContainer(1, 7, "14.00", day(1))

	allocations, shortfall := allocateAcross([]*models.Container{b}, 7)

	if shortfall != 0 || len(allocations) != 1 || allocations[0].Qty != 7 {
		t.Fatalf("unexpected result: allocations=%+v shortfall=%d", allocations, shortfall)
	}
	if b.RemainingQty != 0 {
		t.Fatalf("remaining = %d, want 0 (eligible for Depleted transition)", b.RemainingQty)
	}
}

func TestAllocateAcross_SkipsEmptyBatches(t *testing.T) {
	empty := testContainer(1, 5, "10.00", day(1))
	empty.RemainingQty = 0
	full := testContainer(2, 5, "10.00", day(2))

	allocations, shortfall := allocateAcross([]*models.Container{empty, full}, 3)

	if shortfall != 0 || len(allocations) != 1 || allocations[0].ContainerId != 2 {
		t.Fatalf("expected single allocation from batch 2, got %+v shortfall=%d", allocations, shortfall)
	}
}

func TestReconcile_ShortfallIsInsufficientStock(t *testing.T) {
	b1 := testContainer(1, 5, "10.00", day(1))
	b2 := testContainer(2, 3, "9.00", day(2))

	allocations, shortfall := allocateAcross([]*models.Container{b1, b2}, 10)

	if shortfall != 2 {
		t.Fatalf("expected shortfall 2, got %d", shortfall)
	}

	err := reconcileAllocations("room-1", 10, allocations, shortfall)
	if !utils.IsInsufficientStock(err) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	var insufficient *utils.InsufficientStockError
	if !errors.As(err, &insufficient) || insufficient.Shortfall != 2 || insufficient.Requested != 10 {
		t.Fatalf("unexpected error payload: %+v", insufficient)
	}
}

func TestReconcile_EmptyRoomShortfallsWholeRequest(t *testing.T) {
	allocations, shortfall := allocateAcross(nil, 4)

	if len(allocations) != 0 || shortfall != 4 {
		t.Fatalf("expected zero allocations and shortfall 4, got %+v %d", allocations, shortfall)
	}
	err := reconcileAllocations("room-1", 4, allocations, shortfall)
	if !utils.IsInsufficientStock(err) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
}

func TestReconcile_OverAllocationIsInternalError(t *testing.T) {
	// Fabricated: allocating more than requested must never pass as a business
	// failure.
	allocations := []Allocation{{ContainerId: 1, Qty: 6, UnitPrice: decimal.New(2, 0)}}

	err := reconcileAllocations("room-1", 5, allocations, 0)
	var over *utils.OverAllocationError
	if !errors.As(err, &over) {
		t.Fatalf("expected OverAllocationError, got %v", err)
	}
	if utils.IsInsufficientStock(err) {
		t.Fatalf("over-allocation must not classify as insufficient stock")
	}
}

func TestAllocateStock_RejectsNonPositiveQty(t *testing.T) {
	logger := logrus.New()

	// Validation happens before any store access, so a nil tx is safe here.
	for _, qty := range []int64{0, -3} {
		_, err := AllocateStock(nil, logger, uuid.New(), qty)
		if !utils.IsInvalidRequest(err) {
			t.Fatalf("qty=%d expected InvalidRequestError, got %v", qty, err)
		}
	}
}

func TestAllocation_ConcreteScenario(t *testing.T) {
	// Batch A: qty 5, 10.00 => 2.00/unit. Batch B: qty 5, 15.00 => 3.00/unit.
	a := testContainer(1, 5, "10.00", day(1))
	b := testContainer(2, 5, "15.00", day(2))

	allocations, shortfall := allocateAcross([]*models.Container{a, b}, 7)
	if shortfall != 0 {
		t.Fatalf("expected full satisfaction, shortfall=%d", shortfall)
	}

	wantPriceA := decimal.RequireFromString("2.00")
	wantPriceB := decimal.RequireFromString("3.00")
	if allocations[0].Qty != 5 || !allocations[0].UnitPrice.Equal(wantPriceA) {
		t.Fatalf("allocation A = %+v, want qty 5 @ 2.00", allocations[0])
	}
	if allocations[1].Qty != 2 || !allocations[1].UnitPrice.Equal(wantPriceB) {
		t.Fatalf("allocation B = %+v, want qty 2 @ 3.00", allocations[1])
	}
	if a.RemainingQty != 0 || b.RemainingQty != 3 {
		t.Fatalf("remaining A=%d B=%d, want 0 and 3", a.RemainingQty, b.RemainingQty)
	}

	order := models.Order{OrderType: models.OrderTypeConsuming, RequestedQty: 7}
	for _, alloc := range allocations {
		order.Details = append(order.Details, models.OrderDetail{
			ContainerId: alloc.ContainerId,
			Qty:         alloc.Qty,
			Price:       alloc.UnitPrice,
		})
	}
	order.UpdateAmount()

	wantTotal := decimal.RequireFromString("16.00")
	if !order.TotalAmount.Equal(wantTotal) {
		t.Fatalf("order amount = %s, want 16.00", order.TotalAmount)
	}
	if err := order.ValidateDerivedAmount(); err != nil {
		t.Fatalf("derived amount validation: %v", err)
	}
}

func TestAllocation_ConservationProperty(t *testing.T) {
	// Random stock/consume sequences; after every operation the eggs drawn from
	// containers must equal the eggs recorded by successful allocations.
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		var containers []*models.Container
		var recorded int64
		nextId := 1

		for op := 0; op < 40; op++ {
			if rng.Intn(2) == 0 {
				qty := int64(rng.Intn(20) + 1)
				containers = append(containers, testContainer(nextId, qty, "10.00", day(nextId%28+1)))
				nextId++
				continue
			}

			requested := int64(rng.Intn(30) + 1)

			// Mimic the transactional boundary: snapshot, allocate, and restore
			// on shortfall the way a rollback would.
			snapshot := make([]int64, len(containers))
			for i, c := range containers {
				snapshot[i] = c.RemainingQty
			}
			allocations, shortfall := allocateAcross(containers, requested)
			if err := reconcileAllocations("room", requested, allocations, shortfall); err != nil {
				if !utils.IsInsufficientStock(err) {
					t.Fatalf("run=%d unexpected reconcile error: %v", run, err)
				}
				for i, c := range containers {
					c.RemainingQty = snapshot[i]
				}
				continue
			}
			for _, alloc := range allocations {
				recorded += alloc.Qty
			}

			var consumed int64
			for _, c := range containers {
				consumed += c.TotalQty - c.RemainingQty
			}
			if consumed != recorded {
				t.Fatalf("run=%d op=%d conservation violated: consumed=%d recorded=%d", run, op, consumed, recorded)
			}
		}
	}
}
