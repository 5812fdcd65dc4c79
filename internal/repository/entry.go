package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrEntryNotFound = errors.New("client store entry not found")

// Entry is one key/value pair of the durable client store.
type Entry struct {
	Key       string    `db:"store_key"`
	Value     string    `db:"store_value"`
	UpdatedAt time.Time `db:"updated_at"`
}

type EntryRepository interface {
	ByKey(key string) (*Entry, error)
	Put(key, value string) error
	Delete(key string) error
	// DeleteIf deletes the entry only while it still holds value, and reports
	// whether it did.
	DeleteIf(key, value string) (bool, error)
	// Take deletes the entry and returns what it held, so a value can be
	// consumed at most once.
	Take(key string) (*Entry, error)
	List() ([]Entry, error)
}

type entryRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewEntryRepository(db *sqlx.DB) EntryRepository {
	return &entryRepository{db: db, now: time.Now}
}

func (r *entryRepository) ByKey(key string) (*Entry, error) {
	entry := &Entry{}
	query := `SELECT store_key, store_value, updated_at FROM client_store WHERE store_key = $1`

	err := r.db.Get(entry, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Put writes value under key. Concurrent writers are last-write-wins.
func (r *entryRepository) Put(key, value string) error {
	query := `
		INSERT INTO client_store (store_key, store_value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (store_key) DO UPDATE
		SET store_value = excluded.store_value, updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query, key, value, r.now().UTC())
	return err
}

func (r *entryRepository) Delete(key string) error {
	query := `DELETE FROM client_store WHERE store_key = $1`
	_, err := r.db.Exec(query, key)
	return err
}

func (r *entryRepository) DeleteIf(key, value string) (bool, error) {
	query := `DELETE FROM client_store WHERE store_key = $1 AND store_value = $2`
	res, err := r.db.Exec(query, key, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *entryRepository) Take(key string) (*Entry, error) {
	entry := &Entry{}

	// Single statement, so two consumers racing for the same key cannot both win.
	query := `
		DELETE FROM client_store
		WHERE store_key = $1
		RETURNING store_key, store_value, updated_at
	`

	err := r.db.Get(entry, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (r *entryRepository) List() ([]Entry, error) {
	var entries []Entry
	query := `SELECT store_key, store_value, updated_at FROM client_store ORDER BY store_key`

	if err := r.db.Select(&entries, query); err != nil {
		return nil, err
	}
	return entries, nil
}
