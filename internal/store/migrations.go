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

CREATE TABLE IF NOT EXISTS sent_replies (
	id               TEXT PRIMARY KEY,
	message_id       TEXT NOT NULL,
	to_address       TEXT NOT NULL,
	subject          TEXT NOT NULL,
	in_reply_to      TEXT NOT NULL DEFAULT '',
	references_chain TEXT NOT NULL DEFAULT '',
	attachments      TEXT NOT NULL DEFAULT '',
	dispatcher       TEXT NOT NULL,
	sent_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sent_replies_sent_at ON sent_replies(sent_at);
CREATE INDEX IF NOT EXISTS idx_sent_replies_in_reply_to ON sent_replies(in_reply_to);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_sent_replies_message_id
	ON sent_replies(message_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
