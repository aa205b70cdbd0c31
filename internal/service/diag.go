package service

import (
	"context"
	"time"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"go.uber.org/zap"
)

// DiagService backs the operator-facing connectivity probes. Not part of the
// stable contract; responses are ad hoc by design.
type DiagService struct {
	qb     *quickbase.Client
	cfg    *config.Config
	logger *zap.Logger
}

// NewDiagService creates the diagnostics service.
func NewDiagService(qb *quickbase.Client, cfg *config.Config, logger *zap.Logger) *DiagService {
	return &DiagService{qb: qb, cfg: cfg, logger: logger}
}

// ConnectionReport shows which settings are present (never their values) and
// whether a fields probe against the header table succeeds.
type ConnectionReport struct {
	RealmHostnameSet bool   `json:"realmHostnameSet"`
	UserTokenSet     bool   `json:"userTokenSet"`
	HeaderTable      string `json:"headerTable"`
	LineItemsTable   string `json:"lineItemsTable"`
	ProbeOK          bool   `json:"probeOk"`
	ProbeError       string `json:"probeError,omitempty"`
	FieldCount       int    `json:"fieldCount,omitempty"`
}

// CheckConnection reports configuration presence and probes the header table.
func (s *DiagService) CheckConnection(ctx context.Context) *ConnectionReport {
	qb := s.cfg.QuickBase
	report := &ConnectionReport{
		RealmHostnameSet: qb.RealmHostname != "",
		UserTokenSet:     qb.UserToken != "",
		HeaderTable:      qb.OrderSubmissionsTable,
		LineItemsTable:   qb.LineItemsTable,
	}
	if !report.RealmHostnameSet || !report.UserTokenSet || report.HeaderTable == "" {
		return report
	}

	fields, err := s.qb.ListFields(ctx, qb.OrderSubmissionsTable)
	if err != nil {
		report.ProbeError = err.Error()
		return report
	}
	report.ProbeOK = true
	report.FieldCount = len(fields)
	return report
}

// DateFormatReport echoes whether a date value would pass order validation
// and what it looks like on the wire, so operators can check a misbehaving
// form without submitting an order.
type DateFormatReport struct {
	Input      string `json:"input"`
	Valid      bool   `json:"valid"`
	WireFormat string `json:"wireFormat,omitempty"`
	Today      string `json:"today"`
}

// CheckDateFormat validates a date value against the order wire format.
func (s *DiagService) CheckDateFormat(value string) *DateFormatReport {
	report := &DateFormatReport{
		Input: value,
		Valid: datePattern.MatchString(value),
		Today: time.Now().Format("2006-01-02"),
	}
	if report.Valid {
		report.WireFormat = value
	}
	return report
}

// JobsTableReport is the jobs-table reachability probe.
type JobsTableReport struct {
	TableID      string            `json:"tableId"`
	FieldCount   int               `json:"fieldCount"`
	RecordCount  int               `json:"recordCount"`
	SampleFields []quickbase.Field `json:"sampleFields"`
}

// CheckJobsTable lists the jobs table's fields and counts its rows.
func (s *DiagService) CheckJobsTable(ctx context.Context) (*JobsTableReport, error) {
	tableID := s.cfg.QuickBase.JobsTable

	fields, err := s.qb.ListFields(ctx, tableID)
	if err != nil {
		return nil, err
	}

	recordIDField := quickbase.ResolveRecordIDField(fields)
	result, err := s.qb.QueryRecords(ctx, quickbase.QueryRequest{
		From:   tableID,
		Select: []int{recordIDField},
	})
	if err != nil {
		return nil, err
	}

	sample := fields
	if len(sample) > 10 {
		sample = sample[:10]
	}
	return &JobsTableReport{
		TableID:      tableID,
		FieldCount:   len(fields),
		RecordCount:  len(result.Data),
		SampleFields: sample,
	}, nil
}

// TableFieldsReport is the generic field dump for one table.
type TableFieldsReport struct {
	TableID string            `json:"tableId"`
	Fields  []FieldSummary    `json:"fields"`
	Raw     []quickbase.Field `json:"raw"`
}

// FieldSummary is the trimmed per-field view the UI renders.
type FieldSummary struct {
	ID        int    `json:"id"`
	Label     string `json:"label"`
	FieldType string `json:"fieldType"`
	BaseType  string `json:"baseType"`
}

// TableFields dumps a table's field metadata.
func (s *DiagService) TableFields(ctx context.Context, tableID string) (*TableFieldsReport, error) {
	fields, err := s.qb.ListFields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	summaries := make([]FieldSummary, 0, len(fields))
	for _, f := range fields {
		summaries = append(summaries, FieldSummary{
			ID:        f.ID,
			Label:     f.Label,
			FieldType: f.FieldType,
			BaseType:  f.BaseType,
		})
	}
	return &TableFieldsReport{TableID: tableID, Fields: summaries, Raw: fields}, nil
}

// OrderTableFields dumps both write-path tables in one response.
func (s *DiagService) OrderTableFields(ctx context.Context) map[string]any {
	qb := s.cfg.QuickBase
	result := map[string]any{
		"orderSubmissionsTable": qb.OrderSubmissionsTable,
		"lineItemsTable":        qb.LineItemsTable,
	}

	fields := map[string]any{}
	for name, tableID := range map[string]string{
		"orderSubmissions": qb.OrderSubmissionsTable,
		"lineItems":        qb.LineItemsTable,
	} {
		if tableID == "" {
			continue
		}
		report, err := s.TableFields(ctx, tableID)
		if err != nil {
			fields[name] = map[string]any{"error": err.Error()}
			continue
		}
		fields[name] = report.Fields
	}
	result["fields"] = fields
	return result
}
