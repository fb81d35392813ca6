package datastore

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// SQLiteStore is a Store backed by a SQLite registry file.
//
// Payloads are JSON-encoded into the registry itself. That keeps the
// whole store in one file, which is what the dashboard wants: a single
// DSN to point at, trivially snapshotted for test fixtures.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary creates) a SQLite-backed store at
// the given DSN. Use ":memory:" for an ephemeral store.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate registry: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS visits (
		collection TEXT NOT NULL,
		visit INTEGER NOT NULL,
		obs_date TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, visit)
	);

	CREATE INDEX IF NOT EXISTS idx_visits_date ON visits(collection, obs_date);

	CREATE TABLE IF NOT EXISTS datasets (
		collection TEXT NOT NULL,
		visit INTEGER NOT NULL,
		product TEXT NOT NULL,
		spectrograph INTEGER NOT NULL DEFAULT 0,
		arm TEXT NOT NULL DEFAULT '',
		meta TEXT,
		payload BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, visit, product, spectrograph, arm)
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_visit ON datasets(collection, visit);
	`
	_, err := s.db.Exec(schema)
	return err
}

// sqlitePayload is the JSON document stored in the payload column.
type sqlitePayload struct {
	Array  *Array2D     `json:"array,omitempty"`
	Config *VisitConfig `json:"config,omitempty"`
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, key Key) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM datasets
		WHERE collection = ? AND visit = ? AND product = ? AND spectrograph = ? AND arm = ?
	`, key.Collection, key.Visit, key.Product, key.Spectrograph, key.Arm).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return true, nil
}

// GetDataset implements Store.
func (s *SQLiteStore) GetDataset(ctx context.Context, key Key) (*Dataset, error) {
	var metaJSON sql.NullString
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT meta, payload FROM datasets
		WHERE collection = ? AND visit = ? AND product = ? AND spectrograph = ? AND arm = ?
	`, key.Collection, key.Visit, key.Product, key.Spectrograph, key.Arm).Scan(&metaJSON, &payload)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	ds := &Dataset{Key: key}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &ds.Meta); err != nil {
			return nil, fmt.Errorf("get %s: decode meta: %w", key, err)
		}
	}
	if len(payload) > 0 {
		var p sqlitePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("get %s: decode payload: %w", key, err)
		}
		ds.Array = p.Array
		ds.Config = p.Config
	}
	return ds, nil
}

// ListCollections implements Store. Visit sub-collections of the prefix
// are synthesized from the visits table.
func (s *SQLiteStore) ListCollections(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, visit FROM visits
		WHERE collection = ?
		ORDER BY visit
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list collections under %q: %w", prefix, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var collection string
		var visit Visit
		if err := rows.Scan(&collection, &visit); err != nil {
			return nil, fmt.Errorf("list collections under %q: %w", prefix, err)
		}
		names = append(names, CollectionForVisit(collection, visit))
	}
	return names, rows.Err()
}

// VisitDate implements Store.
func (s *SQLiteStore) VisitDate(ctx context.Context, baseCollection string, visit Visit) (string, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `
		SELECT obs_date FROM visits WHERE collection = ? AND visit = ?
	`, baseCollection, visit).Scan(&date)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{Key: Key{Collection: baseCollection, Visit: visit, Product: "visit"}}
	}
	if err != nil {
		return "", fmt.Errorf("visit date %s/%d: %w", baseCollection, visit, err)
	}
	return date, nil
}

// Open implements Store.
func (s *SQLiteStore) Open(ctx context.Context, baseCollection string, visit Visit) (*Handle, error) {
	// A handle is only issued for registered visits; opening an unknown
	// visit is a caller bug worth surfacing early.
	if _, err := s.VisitDate(ctx, baseCollection, visit); err != nil {
		return nil, err
	}
	return newHandle(s, baseCollection, visit), nil
}

// PutVisit registers a visit under a base collection. Used by ingest
// tooling and test fixtures.
func (s *SQLiteStore) PutVisit(ctx context.Context, baseCollection string, visit Visit, obsDate string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visits (collection, visit, obs_date) VALUES (?, ?, ?)
		ON CONFLICT(collection, visit) DO UPDATE SET obs_date = excluded.obs_date
	`, baseCollection, visit, obsDate)
	if err != nil {
		return fmt.Errorf("put visit %s/%d: %w", baseCollection, visit, err)
	}
	return nil
}

// PutDataset stores one dataset.
func (s *SQLiteStore) PutDataset(ctx context.Context, ds *Dataset) error {
	var metaJSON []byte
	if len(ds.Meta) > 0 {
		var err error
		metaJSON, err = json.Marshal(ds.Meta)
		if err != nil {
			return fmt.Errorf("put %s: encode meta: %w", ds.Key, err)
		}
	}
	payload, err := json.Marshal(sqlitePayload{Array: ds.Array, Config: ds.Config})
	if err != nil {
		return fmt.Errorf("put %s: encode payload: %w", ds.Key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (collection, visit, product, spectrograph, arm, meta, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, visit, product, spectrograph, arm) DO UPDATE SET
			meta = excluded.meta,
			payload = excluded.payload
	`, ds.Key.Collection, ds.Key.Visit, ds.Key.Product, ds.Key.Spectrograph, ds.Key.Arm, string(metaJSON), payload)
	if err != nil {
		return fmt.Errorf("put %s: %w", ds.Key, err)
	}
	return nil
}

// Close closes the registry.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
