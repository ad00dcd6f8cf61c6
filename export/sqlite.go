// Package export writes a redistributed mesh, with the rank owning each
// element and vertex, to a SQLite database.
package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/notargets/meshdist/mesh"
	"github.com/notargets/meshdist/redist"
)

const schema = `
CREATE TABLE IF NOT EXISTS mesh (
    title TEXT,
    n_vert INTEGER,
    n_ele INTEGER,
    ranks INTEGER
);
CREATE TABLE IF NOT EXISTS vertices (
    id INTEGER PRIMARY KEY,
    x REAL,
    y REAL,
    rank INTEGER
);
CREATE TABLE IF NOT EXISTS elements (
    id INTEGER PRIMARY KEY,
    v0 INTEGER,
    v1 INTEGER,
    v2 INTEGER,
    rank INTEGER
);
CREATE INDEX IF NOT EXISTS elements_rank ON elements(rank);
`

// Open opens a SQLite database with the pure Go driver. Use ":memory:" for
// an in-memory database.
func Open(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }

// SQLite writes s to a new database file at path, replacing any mesh already
// stored there
func SQLite(ctx context.Context, path string, s *redist.Snapshot) error {
	db, err := Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()
	if err = Write(ctx, db, s); err != nil {
		return fmt.Errorf("exporting to %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("vertices", s.Mesh.NVert).Int("elements", s.Mesh.NEle).Msg("mesh exported")
	return nil
}

// Write stores s in db in one transaction
func Write(ctx context.Context, db *sql.DB, s *redist.Snapshot) error {
	m := s.Mesh
	if len(s.VertRank) != m.NVert || len(s.EleRank) != m.NEle {
		return fmt.Errorf("snapshot ranks cover %d vertices and %d elements, mesh has %d and %d",
			len(s.VertRank), len(s.EleRank), m.NVert, m.NEle)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"mesh", "vertices", "elements"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	ranks := 0
	for _, r := range s.EleRank {
		ranks = max(ranks, r+1)
	}
	for _, r := range s.VertRank {
		ranks = max(ranks, r+1)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO mesh(title, n_vert, n_ele, ranks) VALUES(?, ?, ?, ?)`,
		m.Title, m.NVert, m.NEle, ranks); err != nil {
		return err
	}

	vstmt, err := tx.PrepareContext(ctx, `INSERT INTO vertices(id, x, y, rank) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer vstmt.Close()
	for v := 0; v < m.NVert; v++ {
		xy := m.Vertex(v)
		if _, err = vstmt.ExecContext(ctx, v, xy[0], xy[1], s.VertRank[v]); err != nil {
			return err
		}
	}

	estmt, err := tx.PrepareContext(ctx, `INSERT INTO elements(id, v0, v1, v2, rank) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer estmt.Close()
	for k := 0; k < m.NEle; k++ {
		e := m.Element(k)
		if _, err = estmt.ExecContext(ctx, k, e[0], e[1], e[2], s.EleRank[k]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Read loads a mesh stored by Write
func Read(ctx context.Context, db *sql.DB) (*redist.Snapshot, error) {
	var (
		m     = &mesh.Mesh{}
		ranks int
		s     = &redist.Snapshot{Mesh: m}
	)
	if err := db.QueryRowContext(ctx, `SELECT title, n_vert, n_ele, ranks FROM mesh`).
		Scan(&m.Title, &m.NVert, &m.NEle, &ranks); err != nil {
		return nil, fmt.Errorf("reading mesh header: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, x, y, rank FROM vertices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, rank int
			x, y     float64
		)
		if err = rows.Scan(&id, &x, &y, &rank); err != nil {
			return nil, err
		}
		if id != len(s.VertRank) {
			return nil, fmt.Errorf("vertex ids are not contiguous at %d", id)
		}
		m.Coords = append(m.Coords, x, y)
		s.VertRank = append(s.VertRank, rank)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	erows, err := db.QueryContext(ctx, `SELECT id, v0, v1, v2, rank FROM elements ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var id, v0, v1, v2, rank int
		if err = erows.Scan(&id, &v0, &v1, &v2, &rank); err != nil {
			return nil, err
		}
		if id != len(s.EleRank) {
			return nil, fmt.Errorf("element ids are not contiguous at %d", id)
		}
		m.Elements = append(m.Elements, v0, v1, v2)
		s.EleRank = append(s.EleRank, rank)
	}
	if err = erows.Err(); err != nil {
		return nil, err
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
