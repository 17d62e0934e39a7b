package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/portalcms/portal-backend/common"
)

// ListAttachments returns attachments in id order. postID > 0 restricts the
// result to one post; this post scoping exists only on the list operation,
// single lookups go through GetAttachment.
func (d *DB) ListAttachments(ctx context.Context, postID int64) ([]*Attachment, error) {
	query := `SELECT id, postid, name, file FROM attachments`
	args := []interface{}{}
	if postID > 0 {
		query += ` WHERE postid = $1`
		args = append(args, postID)
	}
	query += ` ORDER BY id`

	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := []*Attachment{}
	for rows.Next() {
		a := &Attachment{}
		if err := rows.Scan(&a.ID, &a.PostID, &a.Name, &a.File); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (d *DB) GetAttachment(ctx context.Context, id int64) (*Attachment, error) {
	a := &Attachment{}
	err := d.sql.QueryRowContext(ctx,
		`SELECT id, postid, name, file FROM attachments WHERE id = $1`, id).
		Scan(&a.ID, &a.PostID, &a.Name, &a.File)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: attachment %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAttachment records a stored file against a post. The file itself is
// already durable in the media store; file is its stored name.
func (d *DB) CreateAttachment(ctx context.Context, postID int64, name, file string) (*Attachment, error) {
	if err := common.CheckSafeText(name); err != nil {
		return nil, fmt.Errorf("%w: name: %s", ErrValidation, err)
	}

	a := &Attachment{PostID: postID, Name: name, File: file}
	err := d.sql.QueryRowContext(ctx,
		`INSERT INTO attachments(postid, name, file) VALUES ($1, $2, $3) RETURNING id`,
		postID, name, file).Scan(&a.ID)
	if err != nil {
		if pqErrorName(err) == "foreign_key_violation" {
			return nil, fmt.Errorf("%w: post %d", ErrNotFound, postID)
		}
		return nil, err
	}
	return a, nil
}

func (d *DB) DeleteAttachment(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: attachment %d", ErrNotFound, id)
	}
	return nil
}
