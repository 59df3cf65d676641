// Package taxonomy serves the category and speciality lists shown on booking
// forms. Reads go through a bounded-TTL cache with explicit invalidation on
// writes, replacing the process-global mutable cache the service grew out of.
package taxonomy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicateName = errors.New("taxonomy name already exists")

type Item struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Kind selects which taxonomy table an operation targets.
type Kind string

const (
	KindCategory   Kind = "categories"
	KindSpeciality Kind = "specialities"
)

// Store is the persistence boundary; CachedStore wraps it.
type Store interface {
	List(ctx context.Context, kind Kind) ([]Item, error)
	Create(ctx context.Context, kind Kind, name string) (*Item, error)
}

// DB matches the pgxpool methods the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db DB
}

func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) List(ctx context.Context, kind Kind) ([]Item, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s ORDER BY name`, kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *PgStore) Create(ctx context.Context, kind Kind, name string) (*Item, error) {
	it := Item{ID: uuid.New(), Name: name}

	_, err := s.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, name) VALUES ($1, $2)`, kind), it.ID, it.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	return &it, nil
}
