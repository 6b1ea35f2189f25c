package store

import "fmt"

// migration is one versioned, forward-only schema change applied after the
// base schemaDDL. New migrations are appended; existing entries are never
// edited once released.
type migration struct {
	version int
	stmt    string
}

var migrations = []migration{
	{version: 1, stmt: "ALTER TABLE servers ADD COLUMN IF NOT EXISTS last_health_check_at TIMESTAMP"},
}

func (s *Store) runMigrations() error {
	var applied int
	row := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations")
	if err := row.Scan(&applied); err != nil {
		return fmt.Errorf("count applied migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}
		if _, err := s.db.Exec(m.stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}
