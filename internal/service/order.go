package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// datePattern is the literal wire format QuickBase date fields expect. HTML
// date inputs already produce it, so anything else is a client bug.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// OrderService runs the two-phase order write: one header record, then one
// batched line-item write referencing the header's generated id.
type OrderService struct {
	qb     *quickbase.Client
	cfg    *config.Config
	sagas  SagaLog
	logger *zap.Logger
}

// NewOrderService creates the order orchestrator.
func NewOrderService(qb *quickbase.Client, cfg *config.Config, sagas SagaLog, logger *zap.Logger) *OrderService {
	return &OrderService{qb: qb, cfg: cfg, sagas: sagas, logger: logger}
}

// LineItem is one ordered item from the form.
type LineItem struct {
	ItemName    string `json:"itemName"`
	Description string `json:"description"`
	Qty         string `json:"qty"`
	UOM         string `json:"uom"`
}

// OrderSubmission is the submit-order request body.
type OrderSubmission struct {
	JobNumber               string     `json:"jobNumber"`
	ReqDate                 string     `json:"reqDate"`
	DateRequiredForDelivery string     `json:"dateRequiredForDelivery"`
	OrderedBy               string     `json:"orderedBy"`
	LineItems               []LineItem `json:"lineItems"`
}

// OrderResult reports the created header id and how many line items the
// batched write produced.
type OrderResult struct {
	OrderSubmissionID int `json:"orderSubmissionId"`
	LineItemsCreated  int `json:"lineItemsCreated"`
}

// OrphanedHeaderError wraps a line-item write failure. Compensated reports
// whether the best-effort header delete succeeded; when false the header row
// is orphaned in QuickBase until a sweep removes it.
type OrphanedHeaderError struct {
	HeaderRecordID int
	Compensated    bool
	Err            error
}

func (e *OrphanedHeaderError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("failed to create line items (header %d was rolled back): %v", e.HeaderRecordID, e.Err)
	}
	return fmt.Sprintf("failed to create line items (header %d is orphaned): %v", e.HeaderRecordID, e.Err)
}

func (e *OrphanedHeaderError) Unwrap() error { return e.Err }

// Submit validates the order, creates the header, then creates the line
// items. Validation runs before any network call; a bad date or quantity
// causes no side effects at all.
func (s *OrderService) Submit(ctx context.Context, order *OrderSubmission) (*OrderResult, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if missing := s.cfg.MissingQuickBaseKeys(); len(missing) > 0 {
		return nil, &quickbase.ConfigurationError{Missing: missing}
	}

	headerID, err := s.createHeader(ctx, order)
	if err != nil {
		return nil, err
	}

	// The header exists in QuickBase from this point on. Record that before
	// touching the line-item table so a failure between the two writes is
	// visible to the reconciliation sweep.
	saga := SagaEntry{
		ID:             uuid.New().String(),
		HeaderRecordID: headerID,
		State:          SagaHeaderCreated,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.sagas.Record(ctx, saga); err != nil {
		s.logger.Warn("failed to record saga entry; continuing without it",
			zap.Int("header_record_id", headerID),
			zap.Error(err),
		)
	}

	created, err := s.createLineItems(ctx, order, headerID)
	if err != nil {
		return nil, s.compensate(ctx, saga, err)
	}

	if err := s.sagas.Resolve(ctx, saga.ID, SagaCompleted); err != nil {
		s.logger.Warn("failed to resolve saga entry", zap.String("saga_id", saga.ID), zap.Error(err))
	}

	s.logger.Info("order submitted",
		zap.Int("order_submission_id", headerID),
		zap.Int("line_items_created", created),
		zap.String("ordered_by", order.OrderedBy),
	)

	return &OrderResult{OrderSubmissionID: headerID, LineItemsCreated: created}, nil
}

func (s *OrderService) createHeader(ctx context.Context, order *OrderSubmission) (int, error) {
	qb := s.cfg.QuickBase
	row := quickbase.RecordPayload{
		qb.HeaderFields.RelatedJob:   order.JobNumber,
		qb.HeaderFields.OrderedBy:    order.OrderedBy,
		qb.HeaderFields.RequestDate:  order.ReqDate,
		qb.HeaderFields.DeliveryDate: order.DateRequiredForDelivery,
	}

	result, err := s.qb.CreateRecords(ctx, qb.OrderSubmissionsTable,
		[]quickbase.RecordPayload{row}, []int{qb.RecordIDField})
	if err != nil {
		return 0, fmt.Errorf("failed to create order submission: %w", err)
	}

	// The id lives in the metadata block, or failing that in the echoed
	// record-id field.
	if ids := result.Metadata.CreatedRecordIDs; len(ids) > 0 {
		return ids[0], nil
	}
	if len(result.Data) > 0 {
		if v, ok := result.Data[0].ValueOf(qb.RecordIDField).(float64); ok {
			return int(v), nil
		}
	}
	return 0, &quickbase.WriteError{
		TableID: qb.OrderSubmissionsTable,
		Detail:  "response contained no created record id",
	}
}

func (s *OrderService) createLineItems(ctx context.Context, order *OrderSubmission, headerID int) (int, error) {
	qb := s.cfg.QuickBase
	rows := make([]quickbase.RecordPayload, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		qty, _ := strconv.ParseFloat(item.Qty, 64) // validated in validateOrder
		rows = append(rows, quickbase.RecordPayload{
			qb.LineItemFields.RelatedOrder: headerID,
			qb.LineItemFields.ItemName:     item.ItemName,
			qb.LineItemFields.Description:  item.Description,
			qb.LineItemFields.Quantity:     qty,
			qb.LineItemFields.RelatedUOM:   item.UOM,
		})
	}

	result, err := s.qb.CreateRecords(ctx, qb.LineItemsTable, rows, []int{qb.RecordIDField})
	if err != nil {
		return 0, err
	}
	return len(result.Metadata.CreatedRecordIDs), nil
}

// compensate attempts the best-effort header delete after a line-item
// failure, then reports the outcome wrapped around the original error.
func (s *OrderService) compensate(ctx context.Context, saga SagaEntry, cause error) error {
	qb := s.cfg.QuickBase
	where := fmt.Sprintf("{%d.EX.'%d'}", qb.RecordIDField, saga.HeaderRecordID)

	deleted, delErr := s.qb.DeleteRecords(ctx, qb.OrderSubmissionsTable, where)
	compensated := delErr == nil && deleted > 0

	state := SagaOrphaned
	if compensated {
		state = SagaCompensated
	}
	if err := s.sagas.Resolve(ctx, saga.ID, state); err != nil {
		s.logger.Warn("failed to update saga entry after compensation",
			zap.String("saga_id", saga.ID), zap.Error(err))
	}

	if compensated {
		s.logger.Info("rolled back orphaned order header",
			zap.Int("header_record_id", saga.HeaderRecordID))
	} else {
		s.logger.Error("order header left orphaned after line-item failure",
			zap.Int("header_record_id", saga.HeaderRecordID),
			zap.Error(delErr),
		)
	}

	return &OrphanedHeaderError{
		HeaderRecordID: saga.HeaderRecordID,
		Compensated:    compensated,
		Err:            cause,
	}
}

// sweepGrace is how long a header_created entry is presumed live. The
// line-item write runs on the caller's context with no timeout of its own,
// so a younger entry may belong to a submission still in flight.
const sweepGrace = 10 * time.Minute

// SweepOrphans deletes the header of every pending saga entry past the grace
// period. Invoked at startup and from the diagnostics endpoint; safe to run
// repeatedly.
func (s *OrderService) SweepOrphans(ctx context.Context) (int, error) {
	entries, err := s.sagas.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending sagas: %w", err)
	}

	qb := s.cfg.QuickBase
	swept := 0
	for _, entry := range entries {
		if entry.State == SagaHeaderCreated && time.Since(entry.CreatedAt) < sweepGrace {
			continue
		}
		where := fmt.Sprintf("{%d.EX.'%d'}", qb.RecordIDField, entry.HeaderRecordID)
		if _, err := s.qb.DeleteRecords(ctx, qb.OrderSubmissionsTable, where); err != nil {
			s.logger.Warn("orphan sweep could not delete header",
				zap.Int("header_record_id", entry.HeaderRecordID),
				zap.Error(err),
			)
			continue
		}
		if err := s.sagas.Resolve(ctx, entry.ID, SagaCompensated); err != nil {
			s.logger.Warn("failed to resolve swept saga entry",
				zap.String("saga_id", entry.ID), zap.Error(err))
		}
		swept++
	}
	return swept, nil
}

// validateOrder checks every field up front and reports all problems at once.
func validateOrder(order *OrderSubmission) error {
	var problems []string
	if order.JobNumber == "" {
		problems = append(problems, "jobNumber is required")
	}
	if order.ReqDate == "" {
		problems = append(problems, "reqDate is required")
	} else if !datePattern.MatchString(order.ReqDate) {
		problems = append(problems, fmt.Sprintf("reqDate %q is not in YYYY-MM-DD format", order.ReqDate))
	}
	if order.DateRequiredForDelivery == "" {
		problems = append(problems, "dateRequiredForDelivery is required")
	} else if !datePattern.MatchString(order.DateRequiredForDelivery) {
		problems = append(problems, fmt.Sprintf("dateRequiredForDelivery %q is not in YYYY-MM-DD format", order.DateRequiredForDelivery))
	}
	if order.OrderedBy == "" {
		problems = append(problems, "orderedBy is required")
	}
	if len(order.LineItems) == 0 {
		problems = append(problems, "at least one line item is required")
	}
	for i, item := range order.LineItems {
		if item.ItemName == "" {
			problems = append(problems, fmt.Sprintf("lineItems[%d].itemName is required", i))
		}
		if item.UOM == "" {
			problems = append(problems, fmt.Sprintf("lineItems[%d].uom is required", i))
		}
		if _, err := strconv.ParseFloat(item.Qty, 64); err != nil {
			problems = append(problems, fmt.Sprintf("lineItems[%d].qty %q is not a number", i, item.Qty))
		}
	}
	if len(problems) > 0 {
		return &quickbase.ValidationError{Fields: problems}
	}
	return nil
}
