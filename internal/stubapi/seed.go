package stubapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"txdash/internal/core"
	"txdash/internal/log"
)

//go:embed seed/sample.json
var sampleSeed []byte

// ParseSeed decodes a JSON array in the combined-response listTransactions shape.
func ParseSeed(data []byte) ([]core.TransactionRecord, error) {
	var records []core.TransactionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return records, nil
}

// Seed fills an empty store from path, or from the embedded sample when path
// is empty. A store that already holds rows is left untouched.
func Seed(ctx context.Context, store *Store, path string, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	n, err := store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("Store already seeded, skipping import", "rows", n)
		return 0, nil
	}

	data := sampleSeed
	source := "embedded sample"
	if path != "" {
		if data, err = os.ReadFile(path); err != nil {
			return 0, fmt.Errorf("read seed file: %w", err)
		}
		source = path
	}

	records, err := ParseSeed(data)
	if err != nil {
		return 0, err
	}
	inserted, err := store.Insert(ctx, records)
	if err != nil {
		return 0, err
	}

	logger.Info("Seed imported", log.FieldOperation, log.OpSeed, "source", source, "rows", inserted)
	return inserted, nil
}
