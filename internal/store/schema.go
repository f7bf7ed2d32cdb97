package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS usage_records (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id           TEXT NOT NULL,
    provider             TEXT NOT NULL,
    model                TEXT NOT NULL,
    cache_read_tokens    INTEGER NOT NULL,
    cache_write_tokens   INTEGER NOT NULL,
    input_tokens         INTEGER NOT NULL,
    output_tokens        INTEGER NOT NULL,
    is_hit               INTEGER NOT NULL,
    observed_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    total_requests       INTEGER NOT NULL,
    hits                 INTEGER NOT NULL,
    misses               INTEGER NOT NULL,
    cache_read_tokens    INTEGER NOT NULL,
    cache_write_tokens   INTEGER NOT NULL,
    input_tokens         INTEGER NOT NULL,
    output_tokens        INTEGER NOT NULL,
    estimated_savings    REAL NOT NULL,
    consecutive_misses   INTEGER NOT NULL,
    last_hit_at          TEXT,
    saved_at             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_observed ON usage_records(observed_at);
CREATE INDEX IF NOT EXISTS idx_records_model ON usage_records(model);
`
