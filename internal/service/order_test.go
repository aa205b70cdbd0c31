package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"github.com/Alakazam-211/nsimaterials/internal/testutil"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		QuickBase: config.QuickBaseConfig{
			RealmHostname:         "example.quickbase.com",
			UserToken:             "tok",
			OrderSubmissionsTable: "orders-tbl",
			LineItemsTable:        "lines-tbl",
			JobsTable:             "jobs-tbl",
			ContactsTable:         "contacts-tbl",
			UOMTable:              "uom-tbl",
			HeaderFields: config.HeaderFieldIDs{
				RelatedJob: 7, OrderedBy: 11, RequestDate: 12, DeliveryDate: 13,
			},
			LineItemFields: config.LineItemFieldIDs{
				RelatedOrder: 6, ItemName: 8, Description: 10, Quantity: 11, RelatedUOM: 12,
			},
			RecordIDField: 3,
		},
	}
}

func setupOrderTest(t *testing.T) (*testutil.FakeQuickBase, *OrderService, *MemorySagaLog) {
	t.Helper()
	fake := testutil.NewFakeQuickBase()
	t.Cleanup(fake.Close)

	cfg := testConfig()
	qb := quickbase.NewClient(cfg.QuickBase.RealmHostname, cfg.QuickBase.UserToken, zap.NewNop()).
		WithBaseURL(fake.URL())
	sagas := NewMemorySagaLog()
	return fake, NewOrderService(qb, cfg, sagas, zap.NewNop()), sagas
}

func validOrder() *OrderSubmission {
	return &OrderSubmission{
		JobNumber:               "S1",
		ReqDate:                 "2025-11-03",
		DateRequiredForDelivery: "2025-11-17",
		OrderedBy:               "buyer@nsi.example",
		LineItems: []LineItem{
			{ItemName: "Folding chairs", Description: "Gym set", Qty: "24", UOM: "U1"},
			{ItemName: "Whiteboard markers", Description: "", Qty: "3.5", UOM: "U1"},
		},
	}
}

func TestSubmitCreatesHeaderThenLineItems(t *testing.T) {
	fake, svc, _ := setupOrderTest(t)

	result, err := svc.Submit(context.Background(), validOrder())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	calls := fake.CreateCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 create calls, got %d", len(calls))
	}

	header := calls[0]
	if header.TableID != "orders-tbl" {
		t.Errorf("first write went to %q, want the header table", header.TableID)
	}
	if len(header.Rows) != 1 {
		t.Fatalf("expected exactly one header row, got %d", len(header.Rows))
	}
	if header.Rows[0]["7"] != "S1" {
		t.Errorf("header job reference = %v, want S1", header.Rows[0]["7"])
	}
	if header.Rows[0]["12"] != "2025-11-03" {
		t.Errorf("header request date = %v", header.Rows[0]["12"])
	}

	lines := calls[1]
	if lines.TableID != "lines-tbl" {
		t.Errorf("second write went to %q, want the line-item table", lines.TableID)
	}
	if len(lines.Rows) != 2 {
		t.Fatalf("expected 2 line-item rows, got %d", len(lines.Rows))
	}
	for i, row := range lines.Rows {
		if row["6"] != float64(result.OrderSubmissionID) {
			t.Errorf("line %d foreign key = %v, want header id %d", i, row["6"], result.OrderSubmissionID)
		}
		if row["12"] != "U1" {
			t.Errorf("line %d UOM reference = %v, want U1", i, row["12"])
		}
	}
	if lines.Rows[0]["11"] != float64(24) {
		t.Errorf("qty = %v, want 24", lines.Rows[0]["11"])
	}

	if result.LineItemsCreated != 2 {
		t.Errorf("lineItemsCreated = %d", result.LineItemsCreated)
	}
}

func TestSubmitRejectsBadDatesBeforeAnyWrite(t *testing.T) {
	fake, svc, _ := setupOrderTest(t)

	for _, bad := range []string{"11/03/2025", "2025-1-3", "20251103", "yesterday", ""} {
		order := validOrder()
		order.ReqDate = bad

		_, err := svc.Submit(context.Background(), order)

		var validation *quickbase.ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("date %q: expected ValidationError, got %v", bad, err)
		}
	}
	if fake.TotalCallCount() != 0 {
		t.Errorf("expected zero external calls, got %d", fake.TotalCallCount())
	}
}

func TestSubmitRejectsMissingFieldsNamingThem(t *testing.T) {
	fake, svc, _ := setupOrderTest(t)

	order := validOrder()
	order.JobNumber = ""

	_, err := svc.Submit(context.Background(), order)

	var validation *quickbase.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	found := false
	for _, problem := range validation.Fields {
		if problem == "jobNumber is required" {
			found = true
		}
	}
	if !found {
		t.Errorf("validation did not name jobNumber: %v", validation.Fields)
	}
	if fake.TotalCallCount() != 0 {
		t.Errorf("expected zero external calls, got %d", fake.TotalCallCount())
	}
}

func TestSubmitRejectsUnparseableQuantity(t *testing.T) {
	fake, svc, _ := setupOrderTest(t)

	order := validOrder()
	order.LineItems[0].Qty = "a dozen"

	_, err := svc.Submit(context.Background(), order)

	var validation *quickbase.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fake.WriteCallCount() != 0 {
		t.Errorf("expected zero write calls, got %d", fake.WriteCallCount())
	}
}

func TestSubmitRejectsEmptyLineItems(t *testing.T) {
	_, svc, _ := setupOrderTest(t)

	order := validOrder()
	order.LineItems = nil

	_, err := svc.Submit(context.Background(), order)

	var validation *quickbase.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSubmitIsNotIdempotent(t *testing.T) {
	// Current behavior, asserted on purpose: no dedup key exists, so the
	// same payload twice produces two independent headers.
	fake, svc, _ := setupOrderTest(t)

	first, err := svc.Submit(context.Background(), validOrder())
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	second, err := svc.Submit(context.Background(), validOrder())
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}

	if first.OrderSubmissionID == second.OrderSubmissionID {
		t.Errorf("both submissions returned header id %d", first.OrderSubmissionID)
	}
	if len(fake.CreateCalls()) != 4 {
		t.Errorf("expected 4 create calls, got %d", len(fake.CreateCalls()))
	}
}

func TestSubmitCompensatesHeaderOnLineItemFailure(t *testing.T) {
	fake, svc, sagas := setupOrderTest(t)
	fake.FailCreate["lines-tbl"] = 422

	_, err := svc.Submit(context.Background(), validOrder())

	var orphan *OrphanedHeaderError
	if !errors.As(err, &orphan) {
		t.Fatalf("expected OrphanedHeaderError, got %v", err)
	}
	if !orphan.Compensated {
		t.Error("expected the header delete to succeed")
	}

	deletes := fake.DeleteCalls()
	if len(deletes) != 1 {
		t.Fatalf("expected 1 delete call, got %d", len(deletes))
	}
	if deletes[0].TableID != "orders-tbl" {
		t.Errorf("delete went to %q", deletes[0].TableID)
	}

	pending, _ := sagas.Pending(context.Background())
	if len(pending) != 0 {
		t.Errorf("compensated saga should not stay pending: %v", pending)
	}
}

func TestSubmitLeavesOrphanRecordedWhenDeleteFails(t *testing.T) {
	fake, svc, sagas := setupOrderTest(t)
	fake.FailCreate["lines-tbl"] = 500
	fake.FailDelete["orders-tbl"] = 500

	_, err := svc.Submit(context.Background(), validOrder())

	var orphan *OrphanedHeaderError
	if !errors.As(err, &orphan) {
		t.Fatalf("expected OrphanedHeaderError, got %v", err)
	}
	if orphan.Compensated {
		t.Error("delete was made to fail; orphan should not be compensated")
	}

	pending, _ := sagas.Pending(context.Background())
	if len(pending) != 1 {
		t.Fatalf("expected the orphan to stay in the saga log, got %v", pending)
	}
	if pending[0].State != SagaOrphaned {
		t.Errorf("saga state = %q", pending[0].State)
	}
	if pending[0].HeaderRecordID != orphan.HeaderRecordID {
		t.Errorf("saga header id = %d, want %d", pending[0].HeaderRecordID, orphan.HeaderRecordID)
	}
}

func TestSubmitClearsSagaOnSuccess(t *testing.T) {
	_, svc, sagas := setupOrderTest(t)

	if _, err := svc.Submit(context.Background(), validOrder()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	pending, _ := sagas.Pending(context.Background())
	if len(pending) != 0 {
		t.Errorf("expected no pending sagas after success, got %v", pending)
	}
}

func TestSubmitFailsOnMissingConfiguration(t *testing.T) {
	fake := testutil.NewFakeQuickBase()
	t.Cleanup(fake.Close)

	cfg := testConfig()
	cfg.QuickBase.UserToken = ""
	cfg.QuickBase.LineItemsTable = ""
	qb := quickbase.NewClient("", "", zap.NewNop()).WithBaseURL(fake.URL())
	svc := NewOrderService(qb, cfg, NewMemorySagaLog(), zap.NewNop())

	_, err := svc.Submit(context.Background(), validOrder())

	var configErr *quickbase.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(configErr.Missing) != 2 {
		t.Errorf("expected both missing keys reported, got %v", configErr.Missing)
	}
	if fake.TotalCallCount() != 0 {
		t.Errorf("expected zero external calls, got %d", fake.TotalCallCount())
	}
}

func TestSweepOrphansSparesInFlightSubmissions(t *testing.T) {
	// A header_created entry stays in that state for the whole line-item
	// write, which has no timeout. A sweep running concurrently must not
	// delete the header out from under a live submission.
	fake, svc, sagas := setupOrderTest(t)
	ctx := context.Background()

	sagas.Record(ctx, SagaEntry{
		ID:             "in-flight",
		HeaderRecordID: 100,
		State:          SagaHeaderCreated,
		CreatedAt:      time.Now().UTC(),
	})
	sagas.Record(ctx, SagaEntry{
		ID:             "stale",
		HeaderRecordID: 101,
		State:          SagaHeaderCreated,
		CreatedAt:      time.Now().UTC().Add(-time.Hour),
	})

	swept, err := svc.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("SweepOrphans failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want only the stale entry", swept)
	}

	deletes := fake.DeleteCalls()
	if len(deletes) != 1 {
		t.Fatalf("expected 1 delete call, got %d", len(deletes))
	}
	if deletes[0].Where != "{3.EX.'101'}" {
		t.Errorf("delete targeted %q, want the stale header", deletes[0].Where)
	}

	pending, _ := sagas.Pending(ctx)
	if len(pending) != 1 || pending[0].ID != "in-flight" {
		t.Errorf("in-flight entry should survive the sweep, got %v", pending)
	}
}

func TestSweepOrphansDeletesPendingHeaders(t *testing.T) {
	fake, svc, sagas := setupOrderTest(t)
	fake.FailCreate["lines-tbl"] = 500
	fake.FailDelete["orders-tbl"] = 500

	if _, err := svc.Submit(context.Background(), validOrder()); err == nil {
		t.Fatal("expected the seeded failure")
	}

	// The outage clears; the sweep should now remove the orphan.
	delete(fake.FailDelete, "orders-tbl")

	swept, err := svc.SweepOrphans(context.Background())
	if err != nil {
		t.Fatalf("SweepOrphans failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	pending, _ := sagas.Pending(context.Background())
	if len(pending) != 0 {
		t.Errorf("expected an empty saga log after the sweep, got %v", pending)
	}
}
