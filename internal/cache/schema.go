package cache

// schemaStatements creates both tables and their secondary indexes if they
// do not already exist, so opening the store against a file produced by a
// previous run is always safe (spec ยง4.2: "schema creation is idempotent").
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS account (
		uid INTEGER PRIMARY KEY AUTOINCREMENT,
		did TEXT NOT NULL,
		handle TEXT NOT NULL,
		nick TEXT NOT NULL,
		desc TEXT NOT NULL,
		followers INTEGER NOT NULL,
		following INTEGER NOT NULL,
		fetched INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS account_did_index ON account (did)`,
	`CREATE INDEX IF NOT EXISTS account_handle_index ON account (handle)`,

	`CREATE TABLE IF NOT EXISTS edge (
		from_uid INTEGER NOT NULL,
		to_uid INTEGER NOT NULL,
		PRIMARY KEY (from_uid, to_uid)
	)`,
	`CREATE INDEX IF NOT EXISTS edge_to_uid_index ON edge (to_uid)`,
}
