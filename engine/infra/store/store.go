package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docbed/docbed/engine/vfile"
)

// Store implements vfile.Store on PostgreSQL.
type Store struct {
	db DBInterface
}

func NewStore(db DBInterface) *Store {
	return &Store{db: db}
}

var _ vfile.Store = (*Store)(nil)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
