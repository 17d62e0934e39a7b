package db

import (
	"context"
	"database/sql"
	"fmt"
)

const entityColumns = `id, name, url, COALESCE(image, ''), type`

// ListEntities returns the directory ordered by name. typeLabel narrows the
// set to one category by its external label, compared case-insensitively;
// an unrecognized label applies no filter.
func (d *DB) ListEntities(ctx context.Context, typeLabel string) ([]*Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities`
	args := []interface{}{}
	if t, ok := entityTypeFromLabel(typeLabel); ok {
		query += ` WHERE type = $1`
		args = append(args, t)
	}
	query += ` ORDER BY name`

	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := []*Entity{}
	for rows.Next() {
		e := &Entity{}
		if err := rows.Scan(&e.ID, &e.Name, &e.URL, &e.Image, &e.Type); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (d *DB) GetEntity(ctx context.Context, id int64) (*Entity, error) {
	e := &Entity{}
	err := d.sql.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.URL, &e.Image, &e.Type)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: entity %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
