package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS relay_jobs (
	job_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	request JSONB NOT NULL,

	simulated BOOLEAN NOT NULL DEFAULT FALSE,
	tx_hash TEXT NOT NULL DEFAULT '',
	explorer_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT status_known CHECK (status IN ('pending', 'executing', 'completed', 'failed'))
);

CREATE INDEX IF NOT EXISTS relay_jobs_status_idx ON relay_jobs (status);
`
