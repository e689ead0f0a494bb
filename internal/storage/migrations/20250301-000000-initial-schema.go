package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250301-000000",
		Description: "Initial schema",
		Up: []string{
			// Sessions - one row per logical automation run.
			// session_id is the public ULID; id is the rowid for
			// last-insert reporting.
			`CREATE TABLE IF NOT EXISTS sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT UNIQUE NOT NULL,
				target_url TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active'
					CHECK (status IN ('active', 'completed', 'failed', 'paused')),
				started_at TEXT NOT NULL,
				ended_at TEXT,
				metadata TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,

			// Keep updated_at fresh on any row update. Same RFC3339
			// second resolution as the Go side, so the strings stay
			// comparable.
			`CREATE TRIGGER IF NOT EXISTS trg_sessions_updated_at
				AFTER UPDATE ON sessions
				FOR EACH ROW
			BEGIN
				UPDATE sessions
				SET updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
				WHERE id = NEW.id;
			END`,

			// Scraped data - immutable extraction results per session.
			`CREATE TABLE IF NOT EXISTS scraped_data (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
				data_type TEXT NOT NULL,
				content TEXT NOT NULL,
				url TEXT,
				scraped_at TEXT NOT NULL,
				metadata TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scraped_data_session_id ON scraped_data(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_scraped_data_type ON scraped_data(data_type)`,
			`CREATE INDEX IF NOT EXISTS idx_scraped_data_scraped_at ON scraped_data(scraped_at)`,

			// Captured state - opaque session-scoped snapshots.
			`CREATE TABLE IF NOT EXISTS captured_state (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
				state_type TEXT NOT NULL,
				data TEXT NOT NULL,
				captured_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_captured_state_session_id ON captured_state(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_captured_state_captured_at ON captured_state(captured_at)`,

			// Action log - per-action outcome records.
			`CREATE TABLE IF NOT EXISTS action_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
				action TEXT NOT NULL,
				selector TEXT,
				success INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				logged_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_action_log_session_id ON action_log(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_action_log_logged_at ON action_log(logged_at)`,
		},
	})
}
