// Package remote defines the per-user cart resource the sync engine pushes
// to and pulls from, and an HTTP adapter for the cart service.
package remote

import (
	"context"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
)

// Client is the remote cart resource. Calls act on the cart of the identity
// carried by ctx (see identity.NewContext) and are invalid for guests.
type Client interface {
	Fetch(ctx context.Context) (domain.Snapshot, error)
	AddLine(ctx context.Context, line domain.Line) error
	UpdateLine(ctx context.Context, key domain.Key, quantity int) error
	RemoveLine(ctx context.Context, key domain.Key) error
	Clear(ctx context.Context) error
}
