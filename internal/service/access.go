package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"go.uber.org/zap"
)

// AccessService gates the ordering feature on the Material Orders flag in the
// contacts table. No caching: every check round-trips to QuickBase.
type AccessService struct {
	qb     *quickbase.Client
	cfg    *config.Config
	logger *zap.Logger
}

// NewAccessService creates the access gate.
func NewAccessService(qb *quickbase.Client, cfg *config.Config, logger *zap.Logger) *AccessService {
	return &AccessService{qb: qb, cfg: cfg, logger: logger}
}

// AccessResult reports the gate decision plus the matched contact record so
// operators can see what the flag actually held.
type AccessResult struct {
	HasAccess bool           `json:"hasAccess"`
	Reason    string         `json:"reason"`
	Record    *ContactRecord `json:"record,omitempty"`
}

// ContactRecord is the matched contact's email and raw flag value.
type ContactRecord struct {
	Email          any `json:"email"`
	MaterialOrders any `json:"materialOrders"`
}

// CheckAccess resolves the contact table's email and flag columns, queries
// for an exact email match and evaluates the flag. Zero matches is a denial,
// not an error.
func (s *AccessService) CheckAccess(ctx context.Context, email string) (*AccessResult, error) {
	tableID := s.cfg.QuickBase.ContactsTable

	fields, err := s.qb.ListFields(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts table fields: %w", err)
	}

	emailField, ok := quickbase.ResolveField(fields, quickbase.EmailCascade())
	if !ok {
		return nil, &quickbase.FieldResolutionError{TableID: tableID, Target: "Email Address", Candidates: fields}
	}
	flagField, ok := quickbase.ResolveField(fields, quickbase.MaterialOrdersCascade())
	if !ok {
		return nil, &quickbase.FieldResolutionError{TableID: tableID, Target: "Material Orders", Candidates: fields}
	}

	result, err := s.qb.QueryRecords(ctx, quickbase.QueryRequest{
		From:   tableID,
		Select: []int{emailField.ID, flagField.ID},
		Where:  exactMatchClause(emailField.ID, email),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts table: %w", err)
	}

	if len(result.Data) == 0 {
		return &AccessResult{
			HasAccess: false,
			Reason:    "Email not found in Contacts Book table",
		}, nil
	}

	record := result.Data[0]
	flagValue := record.ValueOf(flagField.ID)
	granted := TruthyFlag(flagValue)

	reason := "Material Orders checkbox is not checked"
	if granted {
		reason = "Access granted"
	}
	s.logger.Info("access check evaluated",
		zap.String("email", email),
		zap.Bool("has_access", granted),
	)

	return &AccessResult{
		HasAccess: granted,
		Reason:    reason,
		Record: &ContactRecord{
			Email:          record.ValueOf(emailField.ID),
			MaterialOrders: flagValue,
		},
	}, nil
}

// exactMatchClause builds a {fid.EX.'value'} filter, doubling single quotes
// in the value per the QuickBase query grammar.
func exactMatchClause(fieldID int, value string) string {
	escaped := strings.ReplaceAll(value, "'", "''")
	return fmt.Sprintf("{%d.EX.'%s'}", fieldID, escaped)
}

// TruthyFlag evaluates a checkbox cell against the whitelist of true
// representations QuickBase is known to return. Anything else, including an
// absent value, is false.
func TruthyFlag(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v == 1
	case int:
		return v == 1
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	default:
		return false
	}
}
