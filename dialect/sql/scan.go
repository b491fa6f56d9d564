package sql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/fabrica/schema"
	"github.com/syssam/fabrica/vector"
)

// ScanRows drains rows into column-keyed maps. Byte slices are copied
// to strings (the driver reuses its buffers between Next calls);
// sql.Null* wrappers never appear because scanning targets are any.
func ScanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			row[name] = plain(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func plain(v any) any {
	switch vv := v.(type) {
	case []byte:
		return string(vv)
	case [16]byte:
		return uuid.UUID(vv).String()
	default:
		return v
	}
}

// NormalizeRow rewrites driver values into the wire shapes the API
// promises: uuids and timestamps as strings, vectors as number
// arrays, the projected _distance as float64. The row is modified in
// place and returned.
func NormalizeRow(t *schema.Table, row map[string]any) map[string]any {
	for i := range t.Columns {
		c := &t.Columns[i]
		v, ok := row[c.Name]
		if !ok || v == nil {
			continue
		}
		switch c.Type {
		case schema.TypeVector:
			if s, ok := v.(string); ok {
				if fs, ok := vector.Parse(s); ok {
					row[c.Name] = fs
				}
			}
		case schema.TypeUUID:
			if u, ok := v.(uuid.UUID); ok {
				row[c.Name] = u.String()
			}
		case schema.TypeTimestamp, schema.TypeDate:
			if ts, ok := v.(time.Time); ok {
				row[c.Name] = ts.UTC().Format(time.RFC3339Nano)
			}
		}
	}
	if d, ok := row[vector.DistanceColumn]; ok {
		switch dv := d.(type) {
		case float64:
		case float32:
			row[vector.DistanceColumn] = float64(dv)
		case string:
			if fs, ok := vector.Parse("[" + dv + "]"); ok && len(fs) == 1 {
				row[vector.DistanceColumn] = fs[0]
			}
		}
	}
	return row
}

// ResetSession clears every session variable set on the pinned
// connection before it returns to the pool.
func ResetSession(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, "RESET ALL")
	return err
}
