package storage

import (
	"context"
	"fmt"

	"github.com/carrefour/dvf-engine/internal/model"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return ctx.Err()
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateRecords(records []model.TransactionRecord) error {
	for i := range records {
		r := &records[i]
		if r.NaturalKey == "" {
			return fmt.Errorf("record %d: natural key not set", i)
		}
		if r.GroupID == "" {
			return fmt.Errorf("record %d: group id not set", i)
		}
		if r.BatchID == "" {
			return fmt.Errorf("record %d: batch id not set", i)
		}
		if r.SalePrice <= 0 {
			return fmt.Errorf("record %d: sale price must be positive, got %f", i, r.SalePrice)
		}
		if r.SaleDate.IsZero() {
			return fmt.Errorf("record %d: sale date not set", i)
		}
	}
	return nil
}
