package session

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps results in a SQLite database.
type SQLiteStore struct {
	db               *sql.DB
	connectionString string
	ttl              time.Duration
	now              func() time.Time
}

func NewSQLiteStore(connectionString string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// a second connection to ":memory:" would open a separate database
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:               db,
		connectionString: connectionString,
		ttl:              ttl,
		now:              time.Now,
	}
	if err := store.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) createTable() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS results (
		session_id TEXT PRIMARY KEY,
		png BLOB NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		faces_swapped INTEGER NOT NULL,
		source_faces INTEGER NOT NULL,
		target_faces INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Get(sessionID string) (*Result, error) {
	row := s.db.QueryRow(`SELECT png, width, height, faces_swapped, source_faces, target_faces, created_at
		FROM results WHERE session_id = ?`, sessionID)

	var result Result
	var createdAt int64
	err := row.Scan(&result.PNG, &result.Width, &result.Height,
		&result.FacesSwapped, &result.SourceFaces, &result.TargetFaces, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result.CreatedAt = time.Unix(0, createdAt)
	if expired(result.CreatedAt, s.ttl, s.now()) {
		return nil, s.Clear(sessionID)
	}
	return &result, nil
}

func (s *SQLiteStore) Put(sessionID string, result *Result) error {
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.db.Exec(`INSERT INTO results
		(session_id, png, width, height, faces_swapped, source_faces, target_faces, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			png = excluded.png,
			width = excluded.width,
			height = excluded.height,
			faces_swapped = excluded.faces_swapped,
			source_faces = excluded.source_faces,
			target_faces = excluded.target_faces,
			created_at = excluded.created_at`,
		sessionID, result.PNG, result.Width, result.Height,
		result.FacesSwapped, result.SourceFaces, result.TargetFaces, createdAt.UnixNano())
	if err != nil {
		return err
	}

	if s.ttl > 0 {
		_, err = s.db.Exec("DELETE FROM results WHERE created_at < ?", s.now().Add(-s.ttl).UnixNano())
	}
	return err
}

func (s *SQLiteStore) Clear(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM results WHERE session_id = ?", sessionID)
	return err
}

func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
