package authorizer

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// PurchaseContext is the read-only slice of a cart or order the engine needs:
// who is buying, for how much, and in which categories.
type PurchaseContext struct {
	EntityID    uuid.UUID
	CompanyID   uuid.UUID
	Total       decimal.Decimal
	CategoryIDs []string
}

// PurchaseContextProvider sources purchase context from whichever commerce
// backend holds the cart or order. The engine never branches on the backend;
// each provider implements this capability once.
type PurchaseContextProvider interface {
	ResolvePurchase(ctx context.Context, entityType enums.WorkflowEntityType, entityID uuid.UUID) (*PurchaseContext, error)
}
