package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Store provides persistence for emails, questions, FAQ groups and processing jobs
type Store struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// NewStore creates a new store over an open database connection
func NewStore(db *sqlx.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: logger.With().Str("component", "store").Logger(),
	}
}

// DB returns the underlying database connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}
