package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create messages",
		SQL: `
			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				group_id    INTEGER NOT NULL,
				user_id     INTEGER NOT NULL,
				message_id  INTEGER NOT NULL DEFAULT 0,
				content     TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_group_time ON messages (group_id, created_at);
			CREATE INDEX idx_messages_group_user ON messages (group_id, user_id);
		`,
	},
	{
		Version: 2,
		Name:    "create plugin data",
		SQL: `
			CREATE TABLE plugin_data (
				plugin      TEXT NOT NULL,
				key         TEXT NOT NULL,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (plugin, key)
			);
		`,
	},
}
