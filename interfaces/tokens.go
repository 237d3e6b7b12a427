package interfaces

import "context"

type TokenInventoryService interface {
	Flush(ctx context.Context) error
}
