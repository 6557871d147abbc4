package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// sqliteVecIndex backs the vector index with the sqlite-vec extension
// (github.com/asg017/sqlite-vec-go-bindings), using a vec0 virtual table
// keyed by an integer rowid with a side table mapping our string ids to
// that rowid. The table is created lazily on the first Upsert once the
// embedding dimension is known; if that DDL fails (extension not loaded,
// unsupported platform) the caller falls back to the in-memory index.
type sqliteVecIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	dims   int
	ready  bool
	nextID int64
}

func newSQLiteVecIndex(db *sql.DB) *sqliteVecIndex {
	return &sqliteVecIndex{db: db}
}

func (v *sqliteVecIndex) ensureTable(dims int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ready {
		if v.dims != dims {
			return fmt.Errorf("vector dimension mismatch: index is %d, got %d", v.dims, dims)
		}
		return nil
	}
	if _, err := v.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(embedding float[%d])`, dims)); err != nil {
		return err
	}
	if _, err := v.db.Exec(
		`CREATE TABLE IF NOT EXISTS vec_rowid_map (id TEXT PRIMARY KEY, rowid INTEGER NOT NULL UNIQUE)`); err != nil {
		return err
	}
	v.dims = dims
	v.ready = true
	return nil
}

func (v *sqliteVecIndex) Upsert(id string, vec []float32) error {
	if err := v.ensureTable(len(vec)); err != nil {
		return err
	}
	payload, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	var rowid int64
	err = v.db.QueryRow(`SELECT rowid FROM vec_rowid_map WHERE id = ?`, id).Scan(&rowid)
	switch {
	case err == sql.ErrNoRows:
		v.nextID++
		rowid = v.nextID
		if _, err := v.db.Exec(`INSERT INTO vec_rowid_map (id, rowid) VALUES (?, ?)`, id, rowid); err != nil {
			return err
		}
		_, err = v.db.Exec(`INSERT INTO vec_items(rowid, embedding) VALUES (?, vec_f32(?))`, rowid, string(payload))
		return err
	case err != nil:
		return err
	default:
		if _, err := v.db.Exec(`DELETE FROM vec_items WHERE rowid = ?`, rowid); err != nil {
			return err
		}
		_, err = v.db.Exec(`INSERT INTO vec_items(rowid, embedding) VALUES (?, vec_f32(?))`, rowid, string(payload))
		return err
	}
}

func (v *sqliteVecIndex) Delete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var rowid int64
	if err := v.db.QueryRow(`SELECT rowid FROM vec_rowid_map WHERE id = ?`, id).Scan(&rowid); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}
	if _, err := v.db.Exec(`DELETE FROM vec_items WHERE rowid = ?`, rowid); err != nil {
		return err
	}
	_, err := v.db.Exec(`DELETE FROM vec_rowid_map WHERE rowid = ?`, rowid)
	return err
}

func (v *sqliteVecIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.ready {
		return 0
	}
	var n int
	_ = v.db.QueryRow(`SELECT count(*) FROM vec_rowid_map`).Scan(&n)
	return n
}

func (v *sqliteVecIndex) TopK(query []float32, k int) ([]VectorMatch, error) {
	v.mu.RLock()
	ready := v.ready
	v.mu.RUnlock()
	if !ready || k <= 0 {
		return nil, nil
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	rows, err := v.db.Query(`
		SELECT m.id, vi.distance
		FROM vec_items vi
		JOIN vec_rowid_map m ON m.rowid = vi.rowid
		WHERE vi.embedding MATCH vec_f32(?) AND k = ?
		ORDER BY vi.distance`, string(payload), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorMatch
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, err
		}
		// vec0's default metric is L2 distance; convert to a similarity-like
		// score so callers (RRF ranking) can treat it the same as cosine.
		out = append(out, VectorMatch{ID: id, Score: 1.0 / (1.0 + dist)})
	}
	return out, rows.Err()
}
