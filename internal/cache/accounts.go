package cache

import (
	"context"
	"database/sql"
)

// Account is a cached snapshot of a remote actor, plus the local
// bookkeeping bit that decides whether its graph still needs expansion
// (spec ยง4.2).
type Account struct {
	UID       int64
	DID       string
	Handle    string
	Nick      string
	Desc      string
	Followers int
	Following int
	Fetched   bool
}

// ResolveExisting returns the subset of dids already present in the
// store, keyed by did. The crawl engine batches dids to at most 512 per
// call (spec ยง5.1 phase 1), matching the teacher's batching in
// internal/github/client.go's paginated fetch loops; the store itself
// does not chunk, so every did in one call becomes one bound parameter.
func (s *Store) ResolveExisting(ctx context.Context, dids []string) (map[string]int64, error) {
	out := make(map[string]int64, len(dids))
	if len(dids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, span := cacheTracer.Start(ctx, "cache.resolve_existing")
	defer span.End()

	query, args := inClause(`SELECT uid, did FROM account WHERE did IN (`, dids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("resolve_existing", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uid int64
		var did string
		if err := rows.Scan(&uid, &did); err != nil {
			return nil, wrapDBError("resolve_existing scan", err)
		}
		out[did] = uid
	}
	return out, wrapDBError("resolve_existing rows", rows.Err())
}

// InsertAccounts idempotently inserts profile rows, then rereads their
// uids. A did already present is left untouched — its uid, profile
// fields, and fetched bit all survive a re-insert unchanged (spec ยง4.2:
// "never clobbers an existing row"; ยง3: profile fields are mutated only
// on first fetch) — mirroring the Python _fetch_users "insert-or-skip,
// then reread uids" shape.
func (s *Store) InsertAccounts(ctx context.Context, accounts []Account) (map[string]int64, error) {
	out := make(map[string]int64, len(accounts))
	if len(accounts) == 0 {
		return out, nil
	}

	err := s.withWrite(ctx, "cache.insert_accounts", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO account (did, handle, nick, desc, followers, following, fetched)
			VALUES (?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT(did) DO NOTHING
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range accounts {
			if _, err := stmt.Exec(a.DID, a.Handle, a.Nick, a.Desc, a.Followers, a.Following); err != nil {
				return err
			}
		}

		query, args := inClause(`SELECT uid, did FROM account WHERE did IN (`, didsOf(accounts))
		rows, err := tx.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var uid int64
			var did string
			if err := rows.Scan(&uid, &did); err != nil {
				return err
			}
			out[did] = uid
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapDBError("insert_accounts", err)
	}
	return out, nil
}

// UIDsFor is ResolveExisting narrowed to the dids that must already
// exist; a missing did yields ErrNotFound wrapped with its did for
// context.
func (s *Store) UIDsFor(ctx context.Context, dids []string) (map[string]int64, error) {
	found, err := s.ResolveExisting(ctx, dids)
	if err != nil {
		return nil, err
	}
	for _, did := range dids {
		if _, ok := found[did]; !ok {
			return nil, wrapDBError("uids_for "+did, sql.ErrNoRows)
		}
	}
	return found, nil
}

// LoadAccount fetches a single account by uid.
func (s *Store) LoadAccount(ctx context.Context, uid int64) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a Account
	var fetched int
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, did, handle, nick, desc, followers, following, fetched
		FROM account WHERE uid = ?`, uid)
	if err := row.Scan(&a.UID, &a.DID, &a.Handle, &a.Nick, &a.Desc, &a.Followers, &a.Following, &fetched); err != nil {
		return Account{}, wrapDBError("load_account", err)
	}
	a.Fetched = fetched != 0
	return a, nil
}

// MarkFetched sets the fetched bit for uid. Spec ยง5.2 makes this call
// the sole commit point of graph expansion: it must happen only after
// both the followers and follows directions have been paginated and
// their edges inserted, never before or in between.
func (s *Store) MarkFetched(ctx context.Context, uid int64) error {
	return s.withWrite(ctx, "cache.mark_fetched", func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE account SET fetched = 1 WHERE uid = ?`, uid)
		return err
	})
}

// AllAccounts returns every cached account, for ranking (C5).
func (s *Store) AllAccounts(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, did, handle, nick, desc, followers, following, fetched FROM account`)
	if err != nil {
		return nil, wrapDBError("all_accounts", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var fetched int
		if err := rows.Scan(&a.UID, &a.DID, &a.Handle, &a.Nick, &a.Desc, &a.Followers, &a.Following, &fetched); err != nil {
			return nil, wrapDBError("all_accounts scan", err)
		}
		a.Fetched = fetched != 0
		out = append(out, a)
	}
	return out, wrapDBError("all_accounts rows", rows.Err())
}

func didsOf(accounts []Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.DID
	}
	return out
}

// inClause builds a "prefix ?, ?, ?)" query and its arg slice for an IN
// clause over vals. It does no chunking: avoiding driver placeholder
// limits is the caller's responsibility (the crawl engine keeps its
// lookups at <=512 per spec ยง5.1).
func inClause(prefix string, vals []string) (string, []interface{}) {
	args := make([]interface{}, len(vals))
	query := prefix
	for i, v := range vals {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args[i] = v
	}
	query += ")"
	return query, args
}
