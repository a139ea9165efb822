package dataset

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownCollection is returned when loading a collection that was never saved.
var ErrUnknownCollection = errors.New("dataset: unknown trajectory collection")

// Store persists named trajectory collections in SQLite. States are stored
// at single precision.
type Store struct {
	db *sql.DB
}

// OpenStore opens, and creates if needed, the store at dataSourceName.
func OpenStore(dataSourceName string) (*Store, error) {
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	createCollectionsTable := `
    CREATE TABLE IF NOT EXISTS collections (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE
    );
    `
	createTrajectoriesTable := `
    CREATE TABLE IF NOT EXISTS trajectories (
        collectionID INTEGER NOT NULL,
        position INTEGER NOT NULL,
        rows INTEGER NOT NULL,
        cols INTEGER NOT NULL,
        data BLOB NOT NULL,
        PRIMARY KEY (collectionID, position)
    );
    `
	if _, err := db.Exec(createCollectionsTable); err != nil {
		return err
	}
	_, err := db.Exec(createTrajectoriesTable)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores trajectories under name, replacing a previous collection of the
// same name.
func (s *Store) Save(name string, trajectories []*mat.Dense) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM trajectories WHERE collectionID IN (SELECT id FROM collections WHERE name = ?)`, name); err != nil {
		return fmt.Errorf("error clearing collection %q: %w", name, err)
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO collections (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("error inserting collection %q: %w", name, err)
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM collections WHERE name = ?`, name).Scan(&id); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO trajectories (collectionID, position, rows, cols, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for position, traj := range trajectories {
		r, c := traj.Dims()
		if _, err := stmt.Exec(id, position, r, c, encode(traj)); err != nil {
			return fmt.Errorf("error inserting trajectory %d: %w", position, err)
		}
	}
	return tx.Commit()
}

// Load returns the collection as [][]float32 arrays in insertion order.
func (s *Store) Load(name string) ([]any, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM collections WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT rows, cols, data FROM trajectories WHERE collectionID = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []any
	for rows.Next() {
		var r, c int
		var data []byte
		if err := rows.Scan(&r, &c, &data); err != nil {
			return nil, err
		}
		traj, err := decode(r, c, data)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", name, err)
		}
		res = append(res, traj)
	}
	return res, rows.Err()
}

// Names returns the stored collection names.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// Collection returns the named collection as a Source.
func (s *Store) Collection(name string) Source {
	return collection{store: s, name: name}
}

type collection struct {
	store *Store
	name  string
}

func (c collection) Load() ([]any, error) {
	return c.store.Load(c.name)
}

func encode(traj *mat.Dense) []byte {
	r, c := traj.Dims()
	buf := make([]byte, 4*r*c)
	for row := 0; row < r; row++ {
		for col := 0; col < c; col++ {
			binary.LittleEndian.PutUint32(buf[4*(row*c+col):], math.Float32bits(float32(traj.At(row, col))))
		}
	}
	return buf
}

func decode(r, c int, data []byte) ([][]float32, error) {
	if len(data) != 4*r*c {
		return nil, fmt.Errorf("corrupt trajectory blob of %d bytes for %dx%d states", len(data), r, c)
	}
	res := make([][]float32, r)
	for row := range res {
		res[row] = make([]float32, c)
		for col := range res[row] {
			res[row][col] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*(row*c+col):]))
		}
	}
	return res, nil
}
