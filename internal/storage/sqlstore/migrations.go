package sqlstore

import "database/sql"

// schema sets up the database. Column types are chosen so the same DDL is
// valid on SQLite and PostgreSQL. Timestamps are unix seconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS share_groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    max_members INTEGER NOT NULL,
    created_by TEXT NOT NULL,
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS streaming_services (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    max_screens INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS group_streamings (
    group_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    PRIMARY KEY (group_id, service_id),
    FOREIGN KEY (group_id) REFERENCES share_groups(id) ON DELETE CASCADE,
    FOREIGN KEY (service_id) REFERENCES streaming_services(id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS memberships (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    access_data_status TEXT,
    access_data_deadline BIGINT,
    access_data_sent_at BIGINT,
    access_data_confirmed_at BIGINT,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    version BIGINT NOT NULL DEFAULT 0,
    join_seq BIGINT NOT NULL DEFAULT 0,
    UNIQUE (group_id, user_id),
    FOREIGN KEY (group_id) REFERENCES share_groups(id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS access_data_deliveries (
    id TEXT PRIMARY KEY,
    membership_id TEXT NOT NULL,
    delivery_type TEXT NOT NULL,
    content TEXT NOT NULL,
    is_invite_link BOOLEAN NOT NULL DEFAULT FALSE,
    sent_at BIGINT NOT NULL,
    confirmed_at BIGINT,
    notes TEXT,
    seq BIGINT NOT NULL,
    FOREIGN KEY (membership_id) REFERENCES memberships(id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS join_requests (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    response_message TEXT,
    responded_by TEXT,
    created_at BIGINT NOT NULL,
    responded_at BIGINT,
    UNIQUE (group_id, user_id),
    FOREIGN KEY (group_id) REFERENCES share_groups(id) ON DELETE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_group_id ON memberships(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_status ON memberships(access_data_status)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_membership_id ON access_data_deliveries(membership_id)`,
	`CREATE INDEX IF NOT EXISTS idx_join_requests_group_id ON join_requests(group_id)`,
}

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
