package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the loaders below serve both the read path and the reconciler.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const postColumns = `id, title, content, COALESCE(header, ''), featured, created, updated`

// ListPosts returns post summaries (scalars plus event details, no deeper
// relations) in descending id order. only narrows the set to posts that have
// event details ("events") or lack them ("posts"); any other value applies no
// restriction.
func (d *DB) ListPosts(ctx context.Context, only string) ([]*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	switch strings.ToLower(only) {
	case "events":
		query += ` WHERE EXISTS (SELECT 1 FROM eventdetails e WHERE e.postid = posts.id)`
	case "posts":
		query += ` WHERE NOT EXISTS (SELECT 1 FROM eventdetails e WHERE e.postid = posts.id)`
	}
	query += ` ORDER BY id DESC`

	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*Post{}
	byID := map[int64]*Post{}
	ids := []int64{}
	for rows.Next() {
		p := &Post{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Header, &p.Featured, &p.Created, &p.Updated); err != nil {
			return nil, err
		}
		posts = append(posts, p)
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return posts, nil
	}

	evRows, err := d.sql.QueryContext(ctx,
		`SELECT id, postid, starts, ends, COALESCE(place, '') FROM eventdetails WHERE postid = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer evRows.Close()
	for evRows.Next() {
		e := &EventDetails{}
		if err := evRows.Scan(&e.ID, &e.PostID, &e.Start, &e.End, &e.Place); err != nil {
			return nil, err
		}
		if p, ok := byID[e.PostID]; ok {
			p.EventDetails = e
		}
	}
	return posts, evRows.Err()
}

// GetPost returns the fully materialized post: event details, participants
// with their entity ids, and attachments.
func (d *DB) GetPost(ctx context.Context, id int64) (*Post, error) {
	return getPost(ctx, d.sql, id)
}

func getPost(ctx context.Context, q querier, id int64) (*Post, error) {
	p := &Post{}
	err := q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Content, &p.Header, &p.Featured, &p.Created, &p.Updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if p.EventDetails, err = loadEventDetails(ctx, q, id); err != nil {
		return nil, err
	}
	if p.Participants, err = loadParticipants(ctx, q, id); err != nil {
		return nil, err
	}
	if p.Attachments, err = loadAttachments(ctx, q, id); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePost removes the post; event details, participants (with their
// entity links) and attachments go with it via the cascade constraints.
func (d *DB) DeletePost(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	return nil
}

// CreatePost inserts a post from the write document and reconciles its
// optional sub-resources, all inside one transaction. An event-details
// sub-document that cannot become a valid row is dropped without failing the
// create; an unresolvable entity id in any participant entry aborts the
// whole write with ErrNotFound.
func (d *DB) CreatePost(ctx context.Context, doc *PostWrite) (*Post, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	title, content := "", ""
	if doc.Title != nil {
		title = *doc.Title
	}
	if doc.Content != nil {
		content = *doc.Content
	}
	featured := doc.Featured != nil && *doc.Featured

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO posts(title, content, header, featured) VALUES ($1, $2, $3, $4) RETURNING id`,
		title, content, nullable(doc.Header), featured).Scan(&id)
	if err != nil {
		return nil, err
	}

	if doc.EventDetails != nil {
		if _, err := tryCreateEventDetails(ctx, tx, id, doc.EventDetails); err != nil {
			return nil, err
		}
	}
	if doc.Participants != nil {
		for _, p := range *doc.Participants {
			if err := createParticipant(ctx, tx, id, p); err != nil {
				return nil, err
			}
		}
	}

	p, err := getPost(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return p, tx.Commit()
}

// UpdatePost applies the partial write document onto an existing post and
// synchronizes its sub-resources, all inside one transaction. Omitted fields
// and omitted sub-documents are left untouched; a present-but-empty
// participant list deletes the whole stored collection.
func (d *DB) UpdatePost(ctx context.Context, id int64, doc *PostWrite) (*Post, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cur := &Post{}
	var header sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT title, content, header, featured FROM posts WHERE id = $1 FOR UPDATE`, id).
		Scan(&cur.Title, &cur.Content, &header, &cur.Featured)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	cur.Header = header.String

	if doc.Title != nil {
		cur.Title = *doc.Title
	}
	if doc.Content != nil {
		cur.Content = *doc.Content
	}
	if doc.Header != nil {
		cur.Header = *doc.Header
	}
	if doc.Featured != nil {
		cur.Featured = *doc.Featured
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE posts SET title = $1, content = $2, header = $3, featured = $4, updated = now() WHERE id = $5`,
		cur.Title, cur.Content, nullable(&cur.Header), cur.Featured, id)
	if err != nil {
		return nil, err
	}

	if doc.EventDetails != nil {
		if err := syncEventDetails(ctx, tx, id, doc.EventDetails); err != nil {
			return nil, err
		}
	}
	if doc.Participants != nil {
		if err := syncParticipants(ctx, tx, id, *doc.Participants); err != nil {
			return nil, err
		}
	}

	p, err := getPost(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return p, tx.Commit()
}

// singletonResult is the outcome of an optional-singleton create attempt.
type singletonResult int

const (
	singletonCreated singletonResult = iota
	// singletonExists: a row is already there, attempt was a no-op.
	singletonExists
	// singletonInvalid: the document cannot become a valid row, no-op.
	singletonInvalid
)

// tryCreateEventDetails attempts to insert the one-per-post event-details
// row. Incomplete or mis-ordered documents and uniqueness conflicts are
// reported as no-op results, never as errors. The savepoint keeps a conflict
// from poisoning the surrounding transaction.
func tryCreateEventDetails(ctx context.Context, tx *sql.Tx, postID int64, w *EventDetailsWrite) (singletonResult, error) {
	if !w.valid() {
		return singletonInvalid, nil
	}
	place := ""
	if w.Place != nil {
		place = *w.Place
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT eventdetails_create`); err != nil {
		return 0, err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO eventdetails(postid, starts, ends, place) VALUES ($1, $2, $3, $4)`,
		postID, *w.Start, *w.End, place)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT eventdetails_create`); rbErr != nil {
			return 0, rbErr
		}
		if pqErrorName(err) == "unique_violation" {
			return singletonExists, nil
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT eventdetails_create`); err != nil {
		return 0, err
	}
	return singletonCreated, nil
}

// syncEventDetails patches the existing row with the present sub-fields, or
// attempts a create when no row exists. A patch that would break the
// start < end invariant leaves the row unchanged without failing the write.
func syncEventDetails(ctx context.Context, tx *sql.Tx, postID int64, w *EventDetailsWrite) error {
	existing, err := loadEventDetails(ctx, tx, postID)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := tryCreateEventDetails(ctx, tx, postID, w)
		return err
	}

	next := *existing
	if w.Start != nil {
		next.Start = *w.Start
	}
	if w.End != nil {
		next.End = *w.End
	}
	if w.Place != nil {
		next.Place = *w.Place
	}
	if !next.Start.Before(next.End) {
		return nil
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE eventdetails SET starts = $1, ends = $2, place = $3 WHERE id = $4`,
		next.Start, next.End, next.Place, existing.ID)
	return err
}

// syncParticipants reconciles the stored participant collection against the
// desired list: stale rows are deleted first, then identity-addressed entries
// are updated (an identity unknown for this post is silently skipped) and
// identity-less entries are created. Entity sets are replaced wholesale, and
// any entity id that does not resolve aborts with ErrNotFound.
func syncParticipants(ctx context.Context, tx *sql.Tx, postID int64, desired []ParticipantWrite) error {
	stored, err := storedParticipantIDs(ctx, tx, postID)
	if err != nil {
		return err
	}
	ops := diffParticipants(stored, desired)

	for _, id := range ops.deleteIDs {
		// already-gone rows are fine, a concurrent delete is not an error
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM eventparticipants WHERE id = $1 AND postid = $2`, id, postID); err != nil {
			return err
		}
	}

	for _, p := range ops.updates {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM eventparticipants WHERE id = $1 AND postid = $2`, *p.ID, postID).Scan(&id)
		if err == sql.ErrNoRows {
			continue // stale client-supplied id, skip the entry
		}
		if err != nil {
			return err
		}
		if err := resolveEntityIDs(ctx, tx, p.EntityIDs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE eventparticipants SET label = $1 WHERE id = $2`, p.Label, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM eventparticipant_entities WHERE participantid = $1`, id); err != nil {
			return err
		}
		if err := insertParticipantLinks(ctx, tx, id, p.EntityIDs); err != nil {
			return err
		}
	}

	for _, p := range ops.creates {
		if err := createParticipant(ctx, tx, postID, p); err != nil {
			return err
		}
	}
	return nil
}

func createParticipant(ctx context.Context, tx *sql.Tx, postID int64, p ParticipantWrite) error {
	if err := resolveEntityIDs(ctx, tx, p.EntityIDs); err != nil {
		return err
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO eventparticipants(postid, label) VALUES ($1, $2) RETURNING id`,
		postID, p.Label).Scan(&id)
	if err != nil {
		return err
	}
	return insertParticipantLinks(ctx, tx, id, p.EntityIDs)
}

// resolveEntityIDs verifies that every referenced entity exists. A missing
// reference is a rejected request, not a silent drop.
func resolveEntityIDs(ctx context.Context, q querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := q.QueryContext(ctx, `SELECT id FROM entities WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	found := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("%w: entity %d", ErrNotFound, id)
		}
	}
	return nil
}

func insertParticipantLinks(ctx context.Context, tx *sql.Tx, participantID int64, entityIDs []int64) error {
	seen := map[int64]bool{}
	for _, eid := range entityIDs {
		if seen[eid] {
			continue
		}
		seen[eid] = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO eventparticipant_entities(participantid, entityid) VALUES ($1, $2)`,
			participantID, eid); err != nil {
			return err
		}
	}
	return nil
}

func storedParticipantIDs(ctx context.Context, q querier, postID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM eventparticipants WHERE postid = $1`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadEventDetails(ctx context.Context, q querier, postID int64) (*EventDetails, error) {
	e := &EventDetails{}
	err := q.QueryRowContext(ctx,
		`SELECT id, postid, starts, ends, COALESCE(place, '') FROM eventdetails WHERE postid = $1`, postID).
		Scan(&e.ID, &e.PostID, &e.Start, &e.End, &e.Place)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func loadParticipants(ctx context.Context, q querier, postID int64) ([]*EventParticipant, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, postid, label FROM eventparticipants WHERE postid = $1 ORDER BY id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []*EventParticipant{}
	byID := map[int64]*EventParticipant{}
	ids := []int64{}
	for rows.Next() {
		p := &EventParticipant{EntityIDs: []int64{}}
		if err := rows.Scan(&p.ID, &p.PostID, &p.Label); err != nil {
			return nil, err
		}
		participants = append(participants, p)
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return participants, nil
	}

	linkRows, err := q.QueryContext(ctx,
		`SELECT participantid, entityid FROM eventparticipant_entities WHERE participantid = ANY($1) ORDER BY entityid`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var pid, eid int64
		if err := linkRows.Scan(&pid, &eid); err != nil {
			return nil, err
		}
		if p, ok := byID[pid]; ok {
			p.EntityIDs = append(p.EntityIDs, eid)
		}
	}
	return participants, linkRows.Err()
}

func loadAttachments(ctx context.Context, q querier, postID int64) ([]*Attachment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, postid, name, file FROM attachments WHERE postid = $1 ORDER BY id`, postID)
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

// nullable maps a nil or empty string pointer to SQL NULL.
func nullable(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
