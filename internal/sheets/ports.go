package sheets

import (
	"context"

	"github.com/XabSaRon/cashflowr/internal/core"
)

// Ports for outbound mirror adapters.
type (
	// IncomeAppender writes an income record as a new spreadsheet row.
	IncomeAppender interface {
		Append(ctx context.Context, rec core.IncomeRecord) (rowRef string, err error)
	}

	// IncomeRemover clears the row holding the given income record.
	IncomeRemover interface {
		Remove(ctx context.Context, incomeID string) error
	}
)
