package service

import (
	"github.com/Alakazam-211/nsimaterials/internal/config"
	"github.com/Alakazam-211/nsimaterials/internal/identity"
	"github.com/Alakazam-211/nsimaterials/internal/quickbase"
	"go.uber.org/zap"
)

// Services aggregates every business service behind one constructor, the
// shape main wires together.
type Services struct {
	Access   *AccessService
	Options  *OptionsService
	Order    *OrderService
	Diag     *DiagService
	Identity *identity.Client
}

// NewServices builds the service layer on a shared QuickBase client.
func NewServices(qb *quickbase.Client, idp *identity.Client, sagas SagaLog, cfg *config.Config, logger *zap.Logger) *Services {
	return &Services{
		Access:   NewAccessService(qb, cfg, logger),
		Options:  NewOptionsService(qb, cfg, logger),
		Order:    NewOrderService(qb, cfg, sagas, logger),
		Diag:     NewDiagService(qb, cfg, logger),
		Identity: idp,
	}
}
