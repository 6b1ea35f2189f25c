package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS servers (
	id                   UUID PRIMARY KEY,
	kind                 VARCHAR NOT NULL,
	name                 VARCHAR NOT NULL,
	base_url             VARCHAR NOT NULL,
	encrypted_credential VARCHAR NOT NULL,
	enabled              BOOLEAN NOT NULL DEFAULT true,
	origin               VARCHAR NOT NULL DEFAULT 'user',
	created_at           TIMESTAMP NOT NULL DEFAULT current_timestamp,
	updated_at           TIMESTAMP NOT NULL DEFAULT current_timestamp
);

CREATE TABLE IF NOT EXISTS sessions (
	id                    UUID PRIMARY KEY,
	server_id             UUID NOT NULL,
	session_key           VARCHAR NOT NULL,
	user_id               VARCHAR NOT NULL,
	media_type            VARCHAR NOT NULL,
	media_id              VARCHAR NOT NULL,
	title                 VARCHAR NOT NULL,
	parent_title          VARCHAR,
	grandparent_title     VARCHAR,
	season                INTEGER,
	episode               INTEGER,
	year                  INTEGER,
	thumb_url             VARCHAR,
	duration_seconds      DOUBLE NOT NULL DEFAULT 0,
	state                 VARCHAR NOT NULL,
	progress_percent      DOUBLE NOT NULL DEFAULT 0,
	current_time_seconds  DOUBLE NOT NULL DEFAULT 0,
	started_at            BIGINT NOT NULL,
	updated_at            BIGINT NOT NULL,
	stopped_at            BIGINT,
	playback_time         DOUBLE NOT NULL DEFAULT 0,
	last_position_update  BIGINT,
	paused_counter        INTEGER NOT NULL DEFAULT 0,
	ip_address            VARCHAR,
	geo_city              VARCHAR,
	geo_country           VARCHAR,
	geo_latitude          DOUBLE,
	geo_longitude         DOUBLE,
	UNIQUE (server_id, session_key)
);

CREATE TABLE IF NOT EXISTS history_records (
	id               UUID PRIMARY KEY,
	session_id       UUID NOT NULL,
	server_kind      VARCHAR NOT NULL,
	user_id          VARCHAR NOT NULL,
	username         VARCHAR NOT NULL,
	media_type       VARCHAR NOT NULL,
	media_id         VARCHAR NOT NULL,
	title            VARCHAR NOT NULL,
	parent_title     VARCHAR,
	grandparent_title VARCHAR,
	season           INTEGER,
	episode          INTEGER,
	year             INTEGER,
	thumb_url        VARCHAR,
	watched_at       BIGINT NOT NULL,
	media_duration   DOUBLE NOT NULL DEFAULT 0,
	percent_complete DOUBLE NOT NULL DEFAULT 0,
	stream_duration  DOUBLE NOT NULL DEFAULT 0,
	ip_address       VARCHAR,
	geo_city         VARCHAR,
	geo_country      VARCHAR,
	geo_latitude     DOUBLE,
	geo_longitude    DOUBLE,
	UNIQUE (session_id, media_id)
);

CREATE TABLE IF NOT EXISTS users (
	id              VARCHAR NOT NULL,
	server_kind     VARCHAR NOT NULL,
	username        VARCHAR NOT NULL,
	thumb_url       VARCHAR,
	last_seen       BIGINT NOT NULL DEFAULT 0,
	history_enabled BOOLEAN NOT NULL DEFAULT true,
	total_plays     BIGINT NOT NULL DEFAULT 0,
	total_duration  DOUBLE NOT NULL DEFAULT 0,
	PRIMARY KEY (id, server_kind)
);

CREATE TABLE IF NOT EXISTS auth_users (
	id            UUID PRIMARY KEY,
	username      VARCHAR NOT NULL UNIQUE,
	password_hash VARCHAR NOT NULL,
	is_admin      BOOLEAN NOT NULL DEFAULT false,
	is_active     BOOLEAN NOT NULL DEFAULT true,
	email         VARCHAR,
	created_at    TIMESTAMP NOT NULL DEFAULT current_timestamp,
	last_login    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	token_hash VARCHAR NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMP NOT NULL DEFAULT current_timestamp
);

CREATE TABLE IF NOT EXISTS image_cache_entries (
	url_hash         VARCHAR PRIMARY KEY,
	original_url     VARCHAR NOT NULL,
	relative_path    VARCHAR NOT NULL,
	content_type     VARCHAR NOT NULL,
	file_size        BIGINT NOT NULL,
	created_at       TIMESTAMP NOT NULL DEFAULT current_timestamp,
	last_accessed_at TIMESTAMP NOT NULL DEFAULT current_timestamp
);

CREATE TABLE IF NOT EXISTS settings (
	key   VARCHAR PRIMARY KEY,
	value VARCHAR NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         UUID PRIMARY KEY,
	occurred_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
	actor_id   VARCHAR,
	actor_name VARCHAR,
	action     VARCHAR NOT NULL,
	target     VARCHAR,
	outcome    VARCHAR NOT NULL,
	detail     VARCHAR,
	ip_address VARCHAR
);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	applied_at  TIMESTAMP NOT NULL DEFAULT current_timestamp
);
`

func (s *Store) createTables() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return err
	}
	return nil
}

func (s *Store) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_server ON sessions(server_id)",
		"CREATE INDEX IF NOT EXISTS idx_history_watched_at ON history_records(watched_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_history_user ON history_records(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_log_occurred_at ON audit_log(occurred_at DESC)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}
