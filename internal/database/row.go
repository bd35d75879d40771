package database

import (
	"context"

	"github.com/koustreak/unisql/internal/errs"
)

// CollectRows reads up to limit rows (all rows when limit <= 0) from cur and
// returns them as maps keyed by column name, values rendered with
// Value.JSON. Unbounded columns are read fully.
//
// The returned slice is always non-nil. CollectRows does not close cur.
func CollectRows(ctx context.Context, cur Cursor, limit int) ([]map[string]any, error) {
	cols := cur.Columns()
	result := make([]map[string]any, 0)

	for limit <= 0 || len(result) < limit {
		ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		row := make(map[string]any, len(cols))
		for _, desc := range cols {
			if desc.Ordinal == 0 {
				continue
			}
			col, err := cur.Column(desc.Ordinal)
			if err != nil {
				return nil, err
			}
			v, err := col.Value()
			if err != nil {
				return nil, errs.Wrap(errs.KindOf(err), "failed to read column "+desc.Name, err)
			}
			row[desc.Name] = v.JSON()
		}
		result = append(result, row)
	}

	return result, nil
}
