package sqlite

type migration struct {
	version int
	sql     string
}

// migrations run in order; versions are sequential from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE COLLATE NOCASE,
	display_name TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mailbox_accounts (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	label         TEXT NOT NULL,
	provider      TEXT NOT NULL DEFAULT 'imap',
	email_address TEXT NOT NULL,
	imap_server   TEXT NOT NULL DEFAULT '',
	imap_port     INTEGER NOT NULL DEFAULT 993,
	imap_use_ssl  BOOLEAN NOT NULL DEFAULT 1,
	smtp_server   TEXT NOT NULL DEFAULT '',
	smtp_port     INTEGER NOT NULL DEFAULT 587,
	smtp_use_tls  BOOLEAN NOT NULL DEFAULT 1,
	username      TEXT NOT NULL DEFAULT '',
	secret        TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stored_messages (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	account_id      TEXT NOT NULL REFERENCES mailbox_accounts(id) ON DELETE CASCADE,
	external_id     TEXT NOT NULL,
	folder          TEXT NOT NULL DEFAULT 'inbox',
	subject         TEXT NOT NULL DEFAULT '',
	from_email      TEXT NOT NULL DEFAULT '',
	to_emails       TEXT NOT NULL DEFAULT '',
	cc_emails       TEXT NOT NULL DEFAULT '',
	bcc_emails      TEXT NOT NULL DEFAULT '',
	body_text       TEXT NOT NULL DEFAULT '',
	body_html       TEXT NOT NULL DEFAULT '',
	sent_at         DATETIME NOT NULL,
	is_read         BOOLEAN NOT NULL DEFAULT 0,
	is_starred      BOOLEAN NOT NULL DEFAULT 0,
	has_attachments BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	UNIQUE (account_id, external_id)
);

CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'todo',
	due_date          DATETIME,
	source_message_id TEXT,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	note_type         TEXT NOT NULL DEFAULT 'general',
	date              DATETIME,
	job               TEXT NOT NULL DEFAULT '',
	task_id           TEXT,
	title             TEXT NOT NULL,
	content           TEXT NOT NULL DEFAULT '',
	source_message_id TEXT,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON mailbox_accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_user_sent ON stored_messages(user_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
