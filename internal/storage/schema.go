package storage

const schema = `
-- The 'kv' table is the local cache: one string value per key, no expiry.
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL -- epoch ms
);

-- The 'review_log' table keeps every grade given, per namespace.
CREATE TABLE IF NOT EXISTS review_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    namespace TEXT NOT NULL,
    card_key TEXT NOT NULL,
    grade INTEGER NOT NULL,
    interval INTEGER NOT NULL,
    ease INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL -- epoch ms
);

CREATE INDEX IF NOT EXISTS idx_review_log_namespace ON review_log(namespace, reviewed_at);
`
