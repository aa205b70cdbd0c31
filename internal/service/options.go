package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"go.uber.org/zap"
)

// OptionsService loads the reference lists the order form renders: schools
// (from the Jobs table) and units of measure.
type OptionsService struct {
	qb     *quickbase.Client
	cfg    *config.Config
	logger *zap.Logger
}

// NewOptionsService creates the reference-list loader.
func NewOptionsService(qb *quickbase.Client, cfg *config.Config, logger *zap.Logger) *OptionsService {
	return &OptionsService{qb: qb, cfg: cfg, logger: logger}
}

// SchoolOption is one selectable school with its Jobs-table record id.
type SchoolOption struct {
	RecordID   string `json:"recordId"`
	SchoolName string `json:"schoolName"`
}

// SchoolOptionsResult carries the options plus the resolved field ids, which
// the form surfaces for diagnostics.
type SchoolOptionsResult struct {
	Options         []SchoolOption
	FieldID         int
	RecordIDFieldID int
}

// SchoolOptions discovers the name column on the Jobs table, queries every
// row and returns the non-blank names sorted alphabetically.
func (s *OptionsService) SchoolOptions(ctx context.Context) (*SchoolOptionsResult, error) {
	tableID := s.cfg.QuickBase.JobsTable

	fields, err := s.qb.ListFields(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs table fields: %w", err)
	}

	recordIDField := quickbase.ResolveRecordIDField(fields)
	nameField, ok := quickbase.ResolveField(fields, quickbase.SchoolNameCascade(recordIDField))
	if !ok {
		return nil, &quickbase.FieldResolutionError{TableID: tableID, Target: "School Name", Candidates: fields}
	}

	result, err := s.qb.QueryRecords(ctx, quickbase.QueryRequest{
		From:   tableID,
		Select: []int{recordIDField, nameField.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs table: %w", err)
	}

	options := make([]SchoolOption, 0, len(result.Data))
	for _, record := range result.Data {
		name := strings.TrimSpace(stringValue(record.ValueOf(nameField.ID)))
		if name == "" {
			continue
		}
		options = append(options, SchoolOption{
			RecordID:   stringValue(record.ValueOf(recordIDField)),
			SchoolName: name,
		})
	}
	sort.Slice(options, func(i, j int) bool {
		return options[i].SchoolName < options[j].SchoolName
	})

	if len(options) == 0 {
		s.logger.Warn("no school options found; jobs table may be empty or the name column misdetected",
			zap.String("table_id", tableID),
			zap.Int("name_field_id", nameField.ID),
		)
	}

	return &SchoolOptionsResult{
		Options:         options,
		FieldID:         nameField.ID,
		RecordIDFieldID: recordIDField,
	}, nil
}

// UOMOption is one selectable unit of measure with its record id.
type UOMOption struct {
	RecordID string `json:"recordId"`
	UOMValue string `json:"uomValue"`
}

// UOMOptionsResult carries the options plus the resolved field ids.
type UOMOptionsResult struct {
	Options         []UOMOption
	FieldID         int
	RecordIDFieldID int
}

// UOMOptions discovers the value column on the UOM table and returns every
// non-blank unit.
func (s *OptionsService) UOMOptions(ctx context.Context) (*UOMOptionsResult, error) {
	tableID := s.cfg.QuickBase.UOMTable
	if tableID == "" {
		return nil, &quickbase.ConfigurationError{Missing: []string{"UOM_TABLE"}}
	}

	fields, err := s.qb.ListFields(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch UOM table fields: %w", err)
	}

	recordIDField := quickbase.ResolveRecordIDField(fields)
	valueField, ok := quickbase.ResolveField(fields, quickbase.UOMCascade(recordIDField))
	if !ok {
		return nil, &quickbase.FieldResolutionError{TableID: tableID, Target: "UOM", Candidates: fields}
	}

	result, err := s.qb.QueryRecords(ctx, quickbase.QueryRequest{
		From:   tableID,
		Select: []int{recordIDField, valueField.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query UOM table: %w", err)
	}

	options := make([]UOMOption, 0, len(result.Data))
	for _, record := range result.Data {
		value := strings.TrimSpace(stringValue(record.ValueOf(valueField.ID)))
		if value == "" {
			continue
		}
		options = append(options, UOMOption{
			RecordID: stringValue(record.ValueOf(recordIDField)),
			UOMValue: value,
		})
	}

	return &UOMOptionsResult{
		Options:         options,
		FieldID:         valueField.ID,
		RecordIDFieldID: recordIDField,
	}, nil
}

// stringValue renders a QuickBase cell as a string. Record ids come back as
// JSON numbers; everything else is usually already a string.
func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
