package mirror

import (
	"context"

	"plata/internal/core"
)

// Ports for outbound mirror adapters.
type (
	// RowWriter appends one committed transaction to the backup sheet.
	RowWriter interface {
		Append(ctx context.Context, tx core.Transaction, categoryName string) (rowRef string, err error)
	}

	// RowDeleter removes a mirrored transaction row, when the adapter supports it.
	RowDeleter interface {
		Delete(ctx context.Context, transactionID string) error
	}
)
