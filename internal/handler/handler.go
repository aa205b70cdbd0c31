package handler

import (
	"errors"
	"net/http"

	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/identity"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/gin-gonic/gin"
)

// Handlers aggregates every HTTP handler, the shape main wires into routes.
type Handlers struct {
	Auth    *AuthHandler
	Access  *AccessHandler
	Options *OptionsHandler
	Order   *OrderHandler
	Diag    *DiagHandler
}

// NewHandlers creates the handler set.
func NewHandlers(svc *service.Services, cfg *config.Config) *Handlers {
	return &Handlers{
		Auth:    NewAuthHandler(svc.Identity, svc.Access),
		Access:  NewAccessHandler(svc.Access),
		Options: NewOptionsHandler(svc.Options),
		Order:   NewOrderHandler(svc.Order),
		Diag:    NewDiagHandler(svc.Diag, svc.Order),
	}
}

// RenderError maps the error taxonomy onto HTTP statuses and the {error,
// details} envelope the form renders inline. No sanitization: the audience
// is trusted internal staff and the details exist for their diagnosis.
func RenderError(c *gin.Context, err error) {
	var (
		validation  *quickbase.ValidationError
		configErr   *quickbase.ConfigurationError
		fieldErr    *quickbase.FieldResolutionError
		upstream    *quickbase.UpstreamError
		timeout     *quickbase.TimeoutError
		network     *quickbase.NetworkError
		write       *quickbase.WriteError
		orphan      *service.OrphanedHeaderError
		identityErr *identity.AuthError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validation.Error(),
			"details": gin.H{"fields": validation.Fields},
		})
	case errors.As(err, &configErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   configErr.Error() + ". Please check your .config and environment.",
			"missing": configErr.Missing,
		})
	case errors.As(err, &fieldErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fieldErr.Error() + ". Please verify the table structure.",
			"details": gin.H{
				"tableId":         fieldErr.TableID,
				"target":          fieldErr.Target,
				"availableFields": fieldErr.Candidates,
			},
		})
	case errors.As(err, &orphan):
		// Surface the line-item failure's own status, with the orphan state
		// attached.
		status := http.StatusInternalServerError
		var inner *quickbase.UpstreamError
		if errors.As(orphan.Err, &inner) {
			status = inner.StatusCode
		}
		c.JSON(status, gin.H{
			"error": orphan.Error(),
			"details": gin.H{
				"headerRecordId": orphan.HeaderRecordID,
				"compensated":    orphan.Compensated,
			},
		})
	case errors.As(err, &upstream):
		c.JSON(upstream.StatusCode, gin.H{
			"error":   upstream.Error(),
			"details": upstream.Body,
		})
	case errors.As(err, &timeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": timeout.Error()})
	case errors.As(err, &network):
		c.JSON(http.StatusInternalServerError, gin.H{"error": network.Error()})
	case errors.As(err, &write):
		c.JSON(http.StatusInternalServerError, gin.H{"error": write.Error()})
	case errors.As(err, &identityErr):
		status := identityErr.StatusCode
		if status == 0 {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": identityErr.Error(), "code": identityErr.Code})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// UserEmail returns the authenticated caller's email from the context.
func UserEmail(c *gin.Context) string {
	email, _ := c.Get("user_email")
	if e, ok := email.(string); ok {
		return e
	}
	return ""
}
