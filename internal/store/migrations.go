package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	provider      TEXT NOT NULL,
	email_address TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	is_primary    INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'active',
	sync_state    TEXT NOT NULL DEFAULT 'idle',
	last_error    TEXT NOT NULL DEFAULT '',
	last_sync_at  DATETIME,
	settings      TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
	email_id        TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	account_id      TEXT NOT NULL,
	provider_id     TEXT NOT NULL DEFAULT '',
	thread_id       TEXT NOT NULL DEFAULT '',
	subject         TEXT NOT NULL DEFAULT '',
	sender_name     TEXT NOT NULL DEFAULT '',
	sender_email    TEXT NOT NULL DEFAULT '',
	recipients      TEXT NOT NULL DEFAULT '{}',
	date            DATETIME NOT NULL,
	received_at     DATETIME NOT NULL,
	size            INTEGER NOT NULL DEFAULT 0,
	labels          TEXT NOT NULL DEFAULT '[]',
	is_read         INTEGER NOT NULL DEFAULT 0,
	is_starred      INTEGER NOT NULL DEFAULT 0,
	is_draft        INTEGER NOT NULL DEFAULT 0,
	is_sent         INTEGER NOT NULL DEFAULT 0,
	is_trash        INTEGER NOT NULL DEFAULT 0,
	is_spam         INTEGER NOT NULL DEFAULT 0,
	has_attachments INTEGER NOT NULL DEFAULT 0,
	snippet         TEXT NOT NULL DEFAULT '',
	preview_text    TEXT NOT NULL DEFAULT '',
	fetched_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (email_id, user_id)
);

CREATE TABLE IF NOT EXISTS classifications (
	email_id           TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	category           TEXT NOT NULL DEFAULT 'UNCLASSIFIED',
	priority           TEXT NOT NULL DEFAULT 'MEDIUM',
	action_status      TEXT NOT NULL DEFAULT 'NOT_STARTED',
	labels             TEXT NOT NULL DEFAULT '[]',
	due_date           DATETIME,
	scheduled_date     DATETIME,
	estimated_duration INTEGER NOT NULL DEFAULT 0,
	project            TEXT NOT NULL DEFAULT '',
	context_tag        TEXT NOT NULL DEFAULT '',
	confidence         REAL NOT NULL DEFAULT 0.0,
	reasoning          TEXT NOT NULL DEFAULT '[]',
	updated_by         TEXT NOT NULL DEFAULT 'system',
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (email_id, user_id)
);

CREATE TABLE IF NOT EXISTS category_rules (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	priority    TEXT NOT NULL DEFAULT 'MEDIUM',
	is_active   INTEGER NOT NULL DEFAULT 1,
	conditions  TEXT NOT NULL DEFAULT '[]',
	actions     TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_account ON emails(account_id);
CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at);
CREATE INDEX IF NOT EXISTS idx_classifications_category ON classifications(category);
CREATE INDEX IF NOT EXISTS idx_rules_user ON category_rules(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS corrections (
	id         TEXT PRIMARY KEY,
	email_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	original   TEXT NOT NULL DEFAULT '{}',
	corrected  TEXT NOT NULL DEFAULT '{}',
	reason     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS feedback (
	id             TEXT PRIMARY KEY,
	email_id       TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	classification TEXT NOT NULL DEFAULT '{}',
	is_correct     INTEGER NOT NULL,
	feedback       TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_corrections_email ON corrections(email_id, user_id);
CREATE INDEX IF NOT EXISTS idx_feedback_email ON feedback(email_id, user_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
