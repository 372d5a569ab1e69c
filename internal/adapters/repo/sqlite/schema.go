package sqlite

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

-- claim_time and updated_at are unix seconds; claim_time never decreases.
CREATE TABLE IF NOT EXISTS claim_windows (
    account_id TEXT PRIMARY KEY,
    claim_time INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0,
    halted INTEGER NOT NULL DEFAULT 0,
    halt_reason TEXT NOT NULL DEFAULT ''
);
`

// migrations are keyed by the version they bring the database to.
var migrations = map[int]string{}
