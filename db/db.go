package db

import (
	"database/sql"
	"errors"
	"os"

	"github.com/go-redis/redis"

	"github.com/portalcms/portal-backend/log"
)

type DB struct {
	sql *sql.DB

	// Redis, when set, caches markdown-rendered post content. The API works
	// without it.
	Redis *redis.Client
}

var postgresAddr = os.Getenv("POSTGRES_URL")

var schema = []string{
	`CREATE TABLE posts(
		id SERIAL PRIMARY KEY,
		title VARCHAR(100) NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		header VARCHAR(100),
		featured BOOLEAN NOT NULL DEFAULT false,
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated TIMESTAMPTZ NOT NULL DEFAULT now())`,
	`CREATE TABLE entities(
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		url VARCHAR(100) NOT NULL DEFAULT '',
		image VARCHAR(100),
		type INTEGER NOT NULL)`,
	`CREATE TABLE eventdetails(
		id SERIAL PRIMARY KEY,
		postid INTEGER NOT NULL UNIQUE REFERENCES posts(id) ON DELETE CASCADE,
		starts TIMESTAMPTZ NOT NULL,
		ends TIMESTAMPTZ NOT NULL,
		place VARCHAR(100))`,
	`CREATE TABLE eventparticipants(
		id SERIAL PRIMARY KEY,
		postid INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		label VARCHAR(100) NOT NULL)`,
	`CREATE TABLE eventparticipant_entities(
		participantid INTEGER NOT NULL REFERENCES eventparticipants(id) ON DELETE CASCADE,
		entityid INTEGER NOT NULL REFERENCES entities(id),
		PRIMARY KEY(participantid, entityid))`,
	`CREATE TABLE attachments(
		id SERIAL PRIMARY KEY,
		postid INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		name VARCHAR(100) NOT NULL,
		file VARCHAR(100) NOT NULL)`,
}

func Init() (*DB, error) {
	if postgresAddr == "" {
		return nil, errors.New("$POSTGRES_URL not set")
	}

	db, err := sql.Open("postgres", postgresAddr)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

// Open connects to the given address instead of $POSTGRES_URL. Used by tests.
func Open(addr string) (*DB, error) {
	db, err := sql.Open("postgres", addr)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func createTables(db *sql.DB) error {
	log.Info.Printf("Creating Tables...\n")
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		if err != nil {
			if pqErrorName(err) != "duplicate_table" {
				return err
			}
			log.Warn.Printf("%s: %s", pqErrorName(err), err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}
