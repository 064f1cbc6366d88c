package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS client_state (
    key                  TEXT PRIMARY KEY,
    value                TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);
`
