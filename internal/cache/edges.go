package cache

import (
	"context"
	"database/sql"
)

// Edge is a directed follow relationship: from_uid follows to_uid. The
// ranker (C5) decides whether and how to project this into an
// undirected graph; the store only ever persists the directed form
// actually observed (spec ยง4.2, ยง9 open question).
type Edge struct {
	FromUID int64
	ToUID   int64
}

// InsertEdges idempotently inserts a batch of directed edges. Re-running
// the same batch is a no-op thanks to the (from_uid, to_uid) primary key.
func (s *Store) InsertEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	return s.withWrite(ctx, "cache.insert_edges", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO edge (from_uid, to_uid) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.Exec(e.FromUID, e.ToUID); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllEdges returns every cached edge, for ranking.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT from_uid, to_uid FROM edge`)
	if err != nil {
		return nil, wrapDBError("all_edges", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.FromUID, &e.ToUID); err != nil {
			return nil, wrapDBError("all_edges scan", err)
		}
		out = append(out, e)
	}
	return out, wrapDBError("all_edges rows", rows.Err())
}
