package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				source_path TEXT NOT NULL,
				file_exists BOOLEAN NOT NULL DEFAULT true,
				fingerprint VARCHAR(128) NOT NULL,
				modified_since_last_load BOOLEAN NOT NULL DEFAULT false,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_active ON workflows(active);

			CREATE TABLE jobs (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				position INT NOT NULL DEFAULT 0,
				operator_id VARCHAR(255) NOT NULL,
				definition JSONB NOT NULL DEFAULT '{}',
				depends_on VARCHAR(64),
				dependency_pattern TEXT,
				run_if_pattern_match BOOLEAN NOT NULL DEFAULT true,
				active BOOLEAN NOT NULL DEFAULT true,
				status VARCHAR(32) NOT NULL DEFAULT 'pending',
				next_fire_time TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, name)
			);

			CREATE INDEX idx_jobs_workflow_id ON jobs(workflow_id);
			CREATE INDEX idx_jobs_depends_on ON jobs(depends_on);

			CREATE TABLE events (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(64) NOT NULL,
				model_kind VARCHAR(32) NOT NULL,
				model_id VARCHAR(64) NOT NULL,
				exception TEXT,
				output TEXT,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_events_model ON events(model_kind, model_id);
			CREATE INDEX idx_events_occurred_at ON events(occurred_at);
		`,
	}
}
