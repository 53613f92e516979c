package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				source_path TEXT NOT NULL,
				file_exists INTEGER NOT NULL DEFAULT 1,
				fingerprint TEXT NOT NULL,
				modified_since_last_load INTEGER NOT NULL DEFAULT 0,
				active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			CREATE INDEX idx_workflows_active ON workflows(active);

			CREATE TABLE jobs (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				name TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				operator_id TEXT NOT NULL,
				definition TEXT NOT NULL DEFAULT '{}',
				depends_on TEXT,
				dependency_pattern TEXT,
				run_if_pattern_match INTEGER NOT NULL DEFAULT 1,
				active INTEGER NOT NULL DEFAULT 1,
				status TEXT NOT NULL DEFAULT 'pending',
				next_fire_time TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (workflow_id, name)
			);

			CREATE INDEX idx_jobs_workflow_id ON jobs(workflow_id);
			CREATE INDEX idx_jobs_depends_on ON jobs(depends_on);

			CREATE TABLE events (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				model_kind TEXT NOT NULL,
				model_id TEXT NOT NULL,
				exception TEXT,
				output TEXT,
				occurred_at TEXT NOT NULL
			);

			CREATE INDEX idx_events_model ON events(model_kind, model_id);
			CREATE INDEX idx_events_occurred_at ON events(occurred_at);
		`,
	}
}
