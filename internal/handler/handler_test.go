package handler

import (
	"net/http"
	"testing"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/Alakazam-211/nsimaterials/internal/testutil"
	"github.com/gin-gonic/gin"
)

type testEnv struct {
	fake   *testutil.FakeQuickBase
	router *gin.Engine
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	fake := testutil.NewFakeQuickBase()
	t.Cleanup(fake.Close)

	cfg := &config.Config{
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

	qb := quickbase.NewClient(cfg.QuickBase.RealmHostname, cfg.QuickBase.UserToken, testutil.Logger()).
		WithBaseURL(fake.URL())
	services := service.NewServices(qb, nil, service.NewMemorySagaLog(), cfg, testutil.Logger())
	handlers := NewHandlers(services, cfg)

	router := testutil.SetupRouter()
	api := router.Group("/api/v1")
	api.POST("/access-check", handlers.Access.Check)
	api.GET("/school-options", handlers.Options.Schools)
	api.GET("/uom-options", handlers.Options.UOMs)
	api.GET("/table-fields", handlers.Diag.TableFields)
	api.GET("/order-table-fields", handlers.Diag.OrderTableFields)
	api.POST("/submit-order", handlers.Order.Submit)
	api.POST("/diag/sweep-orphans", handlers.Diag.SweepOrphans)
	api.GET("/diag/connection", handlers.Diag.Connection)
	api.GET("/diag/date-format", handlers.Diag.DateFormat)

	return &testEnv{fake: fake, router: router}
}

func seedOrderForm(env *testEnv) {
	env.fake.SetFields("jobs-tbl", []quickbase.Field{
		{ID: 3, Label: "Record ID#", FieldType: "recordid"},
		{ID: 7, Label: "School Name", BaseType: "text"},
	})
	env.fake.AddRecord("jobs-tbl", map[string]any{"3": float64(1), "7": "Adams Elementary"})
	env.fake.SetFields("uom-tbl", []quickbase.Field{
		{ID: 3, Label: "Record ID#", FieldType: "recordid"},
		{ID: 6, Label: "UOM", BaseType: "text"},
	})
	env.fake.AddRecord("uom-tbl", map[string]any{"3": float64(1), "6": "Each"})
}

func validSubmitBody() map[string]any {
	return map[string]any{
		"jobNumber":               "S1",
		"reqDate":                 "2025-11-03",
		"dateRequiredForDelivery": "2025-11-17",
		"orderedBy":               "buyer@nsi.example",
		"lineItems": []map[string]any{
			{"itemName": "Folding chairs", "description": "Gym set", "qty": "24", "uom": "U1"},
		},
	}
}

func TestSubmitOrderSuccess(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.router, "POST", "/api/v1/submit-order", validSubmitBody(), "")
	testutil.RequireStatus(t, w, http.StatusOK)

	resp := testutil.ParseResponse(t, w)
	if resp["success"] != true {
		t.Errorf("success = %v", resp["success"])
	}
	if resp["lineItemsCreated"] != float64(1) {
		t.Errorf("lineItemsCreated = %v", resp["lineItemsCreated"])
	}
	if _, ok := resp["orderSubmissionId"].(float64); !ok {
		t.Errorf("orderSubmissionId missing: %v", resp)
	}
}

func TestSubmitOrderMissingJobNumberIs400WithNoWrites(t *testing.T) {
	env := setupHandlerTest(t)

	body := validSubmitBody()
	body["jobNumber"] = ""

	w := testutil.DoRequest(env.router, "POST", "/api/v1/submit-order", body, "")
	testutil.RequireStatus(t, w, http.StatusBadRequest)

	resp := testutil.ParseResponse(t, w)
	details := resp["details"].(map[string]any)
	fields := details["fields"].([]any)
	if len(fields) == 0 || fields[0] != "jobNumber is required" {
		t.Errorf("error does not name the missing field: %v", resp)
	}
	if env.fake.TotalCallCount() != 0 {
		t.Errorf("expected zero external calls, got %d", env.fake.TotalCallCount())
	}
}

func TestSubmitOrderPropagatesUpstreamStatus(t *testing.T) {
	env := setupHandlerTest(t)
	env.fake.FailCreate["orders-tbl"] = http.StatusForbidden

	w := testutil.DoRequest(env.router, "POST", "/api/v1/submit-order", validSubmitBody(), "")
	testutil.RequireStatus(t, w, http.StatusForbidden)
}

func TestSubmitOrderLineItemFailureReportsOrphanState(t *testing.T) {
	env := setupHandlerTest(t)
	env.fake.FailCreate["lines-tbl"] = http.StatusUnprocessableEntity

	w := testutil.DoRequest(env.router, "POST", "/api/v1/submit-order", validSubmitBody(), "")
	testutil.RequireStatus(t, w, http.StatusUnprocessableEntity)

	resp := testutil.ParseResponse(t, w)
	details := resp["details"].(map[string]any)
	if details["compensated"] != true {
		t.Errorf("expected the header rollback to be reported: %v", resp)
	}
}

func TestAccessCheckEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	env.fake.SetFields("contacts-tbl", []quickbase.Field{
		{ID: 3, Label: "Record ID#", FieldType: "recordid"},
		{ID: 6, Label: "Email Address", BaseType: "text"},
		{ID: 9, Label: "Material Orders", BaseType: "checkbox"},
	})
	env.fake.AddRecord("contacts-tbl", map[string]any{"6": "user@nsi.example", "9": true})

	w := testutil.DoRequest(env.router, "POST", "/api/v1/access-check",
		map[string]any{"email": "user@nsi.example"}, "")
	testutil.RequireStatus(t, w, http.StatusOK)

	resp := testutil.ParseResponse(t, w)
	if resp["hasAccess"] != true {
		t.Errorf("hasAccess = %v", resp["hasAccess"])
	}

	w = testutil.DoRequest(env.router, "POST", "/api/v1/access-check",
		map[string]any{"email": "stranger@nsi.example"}, "")
	testutil.RequireStatus(t, w, http.StatusOK)
	resp = testutil.ParseResponse(t, w)
	if resp["hasAccess"] != false {
		t.Errorf("hasAccess = %v", resp["hasAccess"])
	}
}

func TestAccessCheckRequiresEmail(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.router, "POST", "/api/v1/access-check", map[string]any{}, "")
	testutil.RequireStatus(t, w, http.StatusBadRequest)
}

func TestSchoolOptionsEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	seedOrderForm(env)

	w := testutil.DoRequest(env.router, "GET", "/api/v1/school-options", nil, "")
	testutil.RequireStatus(t, w, http.StatusOK)

	resp := testutil.ParseResponse(t, w)
	options := resp["options"].([]any)
	if len(options) != 1 {
		t.Fatalf("options = %v", options)
	}
	first := options[0].(map[string]any)
	if first["schoolName"] != "Adams Elementary" || first["recordId"] != "1" {
		t.Errorf("option = %v", first)
	}
	if resp["fieldId"] != float64(7) {
		t.Errorf("fieldId = %v", resp["fieldId"])
	}
}

func TestSchoolOptionsFieldResolutionFailureIncludesCandidates(t *testing.T) {
	env := setupHandlerTest(t)
	env.fake.SetFields("jobs-tbl", []quickbase.Field{
		{ID: 3, Label: "Record ID#", FieldType: "recordid"},
		{ID: 8, Label: "Budget", BaseType: "numeric"},
	})

	w := testutil.DoRequest(env.router, "GET", "/api/v1/school-options", nil, "")
	testutil.RequireStatus(t, w, http.StatusInternalServerError)

	resp := testutil.ParseResponse(t, w)
	details := resp["details"].(map[string]any)
	candidates := details["availableFields"].([]any)
	if len(candidates) != 2 {
		t.Errorf("expected the full candidate list, got %v", candidates)
	}
}

func TestTableFieldsRequiresTableID(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.router, "GET", "/api/v1/table-fields", nil, "")
	testutil.RequireStatus(t, w, http.StatusBadRequest)
}

func TestTableFieldsEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	seedOrderForm(env)

	w := testutil.DoRequest(env.router, "GET", "/api/v1/table-fields?tableId=jobs-tbl", nil, "")
	testutil.RequireStatus(t, w, http.StatusOK)

	resp := testutil.ParseResponse(t, w)
	if resp["tableId"] != "jobs-tbl" {
		t.Errorf("tableId = %v", resp["tableId"])
	}
	if len(resp["fields"].([]any)) != 2 {
		t.Errorf("fields = %v", resp["fields"])
	}
}

func TestOrderTableFieldsEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	env.fake.SetFields("orders-tbl", []quickbase.Field{
		{ID: 3, Label: "Record ID#", FieldType: "recordid"},
		{ID: 7, Label: "Related Job", BaseType: "numeric"},
	})
	// Line-item table left unseeded: the dump reports per-table errors
	// instead of failing outright.
	w := testutil.DoRequest(env.router, "GET", "/api/v1/order-table-fields", nil, "")
	testutil.RequireStatus(t, w, http.StatusOK)

	resp := testutil.ParseResponse(t, w)
	fields := resp["fields"].(map[string]any)
	if _, ok := fields["orderSubmissions"].([]any); !ok {
		t.Errorf("orderSubmissions dump missing: %v", fields)
	}
	if _, ok := fields["lineItems"].(map[string]any); !ok {
		t.Errorf("lineItems should carry an error entry: %v", fields)
	}
}

func TestSweepOrphansEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.router, "POST", "/api/v1/diag/sweep-orphans", nil, "")
	testutil.RequireStatus(t, w, http.StatusOK)

	resp := testutil.ParseResponse(t, w)
	if resp["swept"] != float64(0) {
		t.Errorf("swept = %v", resp["swept"])
	}
}

func TestDiagDateFormatEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.router, "GET", "/api/v1/diag/date-format?value=2025-11-03", nil, "")
	testutil.RequireStatus(t, w, http.StatusOK)
	resp := testutil.ParseResponse(t, w)
	if resp["valid"] != true || resp["wireFormat"] != "2025-11-03" {
		t.Errorf("report = %v", resp)
	}

	w = testutil.DoRequest(env.router, "GET", "/api/v1/diag/date-format?value=11%2F03%2F2025", nil, "")
	testutil.RequireStatus(t, w, http.StatusOK)
	resp = testutil.ParseResponse(t, w)
	if resp["valid"] != false {
		t.Errorf("slash date should be invalid: %v", resp)
	}
	if _, present := resp["wireFormat"]; present {
		t.Errorf("invalid date should carry no wire format: %v", resp)
	}
}

func TestDiagConnectionReportsMissingConfig(t *testing.T) {
	fake := testutil.NewFakeQuickBase()
	t.Cleanup(fake.Close)
	cfg := &config.Config{}
	qb := quickbase.NewClient("", "", testutil.Logger()).WithBaseURL(fake.URL())
	services := service.NewServices(qb, nil, service.NewMemorySagaLog(), cfg, testutil.Logger())
	handlers := NewHandlers(services, cfg)

	router := testutil.SetupRouter()
	router.GET("/diag/connection", handlers.Diag.Connection)

	w := testutil.DoRequest(router, "GET", "/diag/connection", nil, "")
	testutil.RequireStatus(t, w, http.StatusOK)

	resp := testutil.ParseResponse(t, w)
	if resp["realmHostnameSet"] != false || resp["userTokenSet"] != false {
		t.Errorf("report = %v", resp)
	}
	if resp["probeOk"] != false {
		t.Errorf("probe should not run without config: %v", resp)
	}
}
