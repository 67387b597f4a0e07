package postgres

// migration is one versioned schema change. Versions are timestamps so
// they sort in application order.
type migration struct {
	name       string
	version    string
	statements []string
}

var migrations = []migration{
	{
		name:    "create_rules_table",
		version: "20260301120000",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS escalate_rules (
				id               TEXT PRIMARY KEY,
				name             TEXT NOT NULL,
				description      TEXT NOT NULL DEFAULT '',
				trigger_type     TEXT NOT NULL,
				trigger_value    INTEGER NOT NULL DEFAULT 0,
				action           TEXT NOT NULL,
				status           TEXT NOT NULL DEFAULT 'active',
				priority         INTEGER NOT NULL DEFAULT 0,
				scope_project_id TEXT NOT NULL DEFAULT '',
				scope_org_id     TEXT NOT NULL DEFAULT '',
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_escalate_rules_status
				ON escalate_rules (status)`,
		},
	},
	{
		name:    "create_jobs_table",
		version: "20260301120001",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS escalate_jobs (
				id           TEXT PRIMARY KEY,
				type         TEXT NOT NULL,
				channel      TEXT NOT NULL,
				state        TEXT NOT NULL DEFAULT 'pending',
				recipient_id TEXT NOT NULL,
				subject      TEXT NOT NULL DEFAULT '',
				message      TEXT NOT NULL DEFAULT '',
				payload      BYTEA,
				rule_id      TEXT NOT NULL DEFAULT '',
				item_id      TEXT NOT NULL DEFAULT '',
				priority     INTEGER NOT NULL DEFAULT 0,
				max_retries  INTEGER NOT NULL DEFAULT 3,
				retry_count  INTEGER NOT NULL DEFAULT 0,
				last_error   TEXT NOT NULL DEFAULT '',
				run_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				sent_at      TIMESTAMPTZ,
				timeout      BIGINT NOT NULL DEFAULT 0,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_escalate_jobs_dequeue
				ON escalate_jobs (channel, priority DESC, run_at ASC)
				WHERE state = 'pending'`,
			`CREATE INDEX IF NOT EXISTS idx_escalate_jobs_state
				ON escalate_jobs (state)`,
		},
	},
	{
		name:    "create_firings_table",
		version: "20260301120002",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS escalate_firings (
				id       TEXT PRIMARY KEY,
				rule_id  TEXT NOT NULL,
				item_id  TEXT NOT NULL,
				fired_at TIMESTAMPTZ NOT NULL,
				CONSTRAINT escalate_firings_pair UNIQUE (rule_id, item_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_escalate_firings_fired_at
				ON escalate_firings (fired_at)`,
		},
	},
	{
		name:    "create_dlq_table",
		version: "20260301120003",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS escalate_dlq (
				id           TEXT PRIMARY KEY,
				job_id       TEXT NOT NULL,
				channel      TEXT NOT NULL,
				recipient_id TEXT NOT NULL,
				subject      TEXT NOT NULL DEFAULT '',
				message      TEXT NOT NULL DEFAULT '',
				payload      BYTEA,
				error        TEXT NOT NULL DEFAULT '',
				retry_count  INTEGER NOT NULL DEFAULT 0,
				max_retries  INTEGER NOT NULL DEFAULT 0,
				rule_id      TEXT NOT NULL DEFAULT '',
				item_id      TEXT NOT NULL DEFAULT '',
				failed_at    TIMESTAMPTZ NOT NULL,
				replayed_at  TIMESTAMPTZ,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_escalate_dlq_failed_at
				ON escalate_dlq (failed_at)`,
		},
	},
}
