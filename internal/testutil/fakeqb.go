package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"

	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
)

// CreateCall records one POST /records the fake received.
type CreateCall struct {
	TableID        string
	Rows           []map[string]any
	FieldsToReturn []int
}

// DeleteCall records one DELETE /records the fake received.
type DeleteCall struct {
	TableID string
	Where   string
}

// FakeQuickBase is an httptest stand-in for the records API: field listing,
// exact-match queries, batched creation and deletion. Tests seed fields and
// records per table, then assert on the recorded calls.
type FakeQuickBase struct {
	Server *httptest.Server

	mu      sync.Mutex
	fields  map[string][]quickbase.Field
	records map[string][]map[string]any // field id (string) -> raw cell value

	nextRecordID int

	createCalls []CreateCall
	deleteCalls []DeleteCall
	queryCalls  int
	fieldsCalls int

	// FailCreate, when non-zero for a table, makes POST /records fail with
	// that status and a QuickBase-shaped error body.
	FailCreate map[string]int
	// FailDelete makes DELETE /records fail for a table.
	FailDelete map[string]int
}

// NewFakeQuickBase starts the fake. Callers own Close via t.Cleanup.
func NewFakeQuickBase() *FakeQuickBase {
	f := &FakeQuickBase{
		fields:       make(map[string][]quickbase.Field),
		records:      make(map[string][]map[string]any),
		nextRecordID: 100,
		FailCreate:   make(map[string]int),
		FailDelete:   make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/fields", f.handleFields)
	mux.HandleFunc("/records/query", f.handleQuery)
	mux.HandleFunc("/records", f.handleRecords)
	f.Server = httptest.NewServer(mux)
	return f
}

// Close shuts the fake down.
func (f *FakeQuickBase) Close() { f.Server.Close() }

// URL is the base URL to hand to quickbase.Client.WithBaseURL.
func (f *FakeQuickBase) URL() string { return f.Server.URL }

// SetFields seeds a table's field metadata.
func (f *FakeQuickBase) SetFields(tableID string, fields []quickbase.Field) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[tableID] = fields
}

// AddRecord seeds one row; keys are field ids as strings, values raw cells.
func (f *FakeQuickBase) AddRecord(tableID string, record map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[tableID] = append(f.records[tableID], record)
}

// CreateCalls returns a copy of the recorded creates.
func (f *FakeQuickBase) CreateCalls() []CreateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CreateCall(nil), f.createCalls...)
}

// DeleteCalls returns a copy of the recorded deletes.
func (f *FakeQuickBase) DeleteCalls() []DeleteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeleteCall(nil), f.deleteCalls...)
}

// WriteCallCount is the total number of create plus delete calls.
func (f *FakeQuickBase) WriteCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls) + len(f.deleteCalls)
}

// TotalCallCount counts every API call the fake has seen.
func (f *FakeQuickBase) TotalCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls) + len(f.deleteCalls) + f.queryCalls + f.fieldsCalls
}

func (f *FakeQuickBase) handleFields(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.fieldsCalls++
	fields, ok := f.fields[r.URL.Query().Get("tableId")]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"message": "table not found"})
		return
	}
	json.NewEncoder(w).Encode(fields)
}

var exactClause = regexp.MustCompile(`^\{(\d+)\.EX\.'(.*)'\}$`)

func (f *FakeQuickBase) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		Select []int  `json:"select"`
		Where  string `json:"where"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.queryCalls++
	rows := f.records[req.From]
	f.mu.Unlock()

	matched := rows
	if req.Where != "" {
		matched = nil
		if m := exactClause.FindStringSubmatch(req.Where); m != nil {
			fieldID, want := m[1], strings.ReplaceAll(m[2], "''", "'")
			for _, row := range rows {
				if fmt.Sprintf("%v", row[fieldID]) == want {
					matched = append(matched, row)
				}
			}
		}
	}

	data := make([]map[string]map[string]any, 0, len(matched))
	for _, row := range matched {
		cells := make(map[string]map[string]any)
		for _, fieldID := range req.Select {
			key := fmt.Sprintf("%d", fieldID)
			if value, ok := row[key]; ok {
				cells[key] = map[string]any{"value": value}
			}
		}
		data = append(data, cells)
	}

	json.NewEncoder(w).Encode(map[string]any{
		"data":     data,
		"metadata": map[string]any{"totalRecords": len(data)},
	})
}

func (f *FakeQuickBase) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		f.handleCreate(w, r)
	case http.MethodDelete:
		f.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeQuickBase) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To             string                      `json:"to"`
		Data           []map[string]map[string]any `json:"data"`
		FieldsToReturn []int                       `json:"fieldsToReturn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rows := make([]map[string]any, 0, len(req.Data))
	for _, encoded := range req.Data {
		row := make(map[string]any, len(encoded))
		for fieldID, cell := range encoded {
			row[fieldID] = cell["value"]
		}
		rows = append(rows, row)
	}
	f.createCalls = append(f.createCalls, CreateCall{
		TableID:        req.To,
		Rows:           rows,
		FieldsToReturn: req.FieldsToReturn,
	})

	if status := f.FailCreate[req.To]; status != 0 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"message": "insert rejected"})
		return
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		id := f.nextRecordID
		f.nextRecordID++
		row["3"] = float64(id)
		f.records[req.To] = append(f.records[req.To], row)
		ids = append(ids, id)
	}

	json.NewEncoder(w).Encode(map[string]any{
		"data":     []map[string]any{},
		"metadata": map[string]any{"createdRecordIds": ids},
	})
}

func (f *FakeQuickBase) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From  string `json:"from"`
		Where string `json:"where"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls = append(f.deleteCalls, DeleteCall{TableID: req.From, Where: req.Where})

	if status := f.FailDelete[req.From]; status != 0 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"message": "delete rejected"})
		return
	}

	deleted := 0
	if m := exactClause.FindStringSubmatch(req.Where); m != nil {
		fieldID, want := m[1], strings.ReplaceAll(m[2], "''", "'")
		kept := f.records[req.From][:0]
		for _, row := range f.records[req.From] {
			if fmt.Sprintf("%v", row[fieldID]) == want {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		f.records[req.From] = kept
	}

	json.NewEncoder(w).Encode(map[string]any{"numberDeleted": deleted})
}
