package storage

const (
	indexTableA = "search_index_a"
	indexTableB = "search_index_b"
)

// dirty column states.
const (
	docClean   = 0
	docDirty   = 1
	docClaimed = 2
)

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    name             TEXT    NOT NULL UNIQUE,
    source           TEXT    NOT NULL CHECK (source IN ('curated', 'discovered', 'both')),
    curated_attrs    TEXT    NOT NULL DEFAULT '{}',
    discovered_attrs TEXT    NOT NULL DEFAULT '{}',
    stars            INTEGER NOT NULL DEFAULT 0,
    language         TEXT    NOT NULL DEFAULT '',
    description      TEXT    NOT NULL DEFAULT '',
    topics           TEXT    NOT NULL DEFAULT '[]',
    category         TEXT,
    priority         TEXT    NOT NULL DEFAULT '',
    score_override   REAL,
    computed_score   REAL,
    stale            INTEGER NOT NULL DEFAULT 0,
    pushed_at        INTEGER,
    last_indexed     INTEGER,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_repositories_stars ON repositories(stars);
CREATE INDEX IF NOT EXISTS idx_repositories_category ON repositories(category);

CREATE TABLE IF NOT EXISTS documents (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    repository_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    path          TEXT    NOT NULL,
    format        TEXT    NOT NULL,
    content       TEXT    NOT NULL,
    content_hash  TEXT    NOT NULL,
    plain_text    TEXT    NOT NULL,
    search_body   TEXT    NOT NULL,
    headings      TEXT    NOT NULL DEFAULT '[]',
    code_blocks   TEXT    NOT NULL DEFAULT '[]',
    outline       TEXT    NOT NULL DEFAULT '[]',
    metrics       TEXT    NOT NULL DEFAULT '{}',
    score         REAL    NOT NULL DEFAULT 0,
    grade         TEXT    NOT NULL DEFAULT '',
    indexed_at    INTEGER NOT NULL,
    dirty         INTEGER NOT NULL DEFAULT 1,
    UNIQUE (repository_id, path)
);
CREATE INDEX IF NOT EXISTS idx_documents_dirty ON documents(dirty) WHERE dirty <> 0;

CREATE VIRTUAL TABLE IF NOT EXISTS search_index_a USING fts5(
    path,
    body,
    tokenize='unicode61 remove_diacritics 2'
);
CREATE VIRTUAL TABLE IF NOT EXISTS search_index_b USING fts5(
    path,
    body,
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS index_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    active     TEXT    NOT NULL CHECK (active IN ('search_index_a', 'search_index_b')),
    generation INTEGER NOT NULL DEFAULT 0,
    rebuilt_at INTEGER
);
INSERT OR IGNORE INTO index_state (id, active, generation) VALUES (1, 'search_index_a', 0);

CREATE TABLE IF NOT EXISTS search_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    query        TEXT    NOT NULL,
    result_count INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    searched_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_log_query ON search_log(query);
`

func shadowOf(active string) string {
	if active == indexTableA {
		return indexTableB
	}
	return indexTableA
}
