package database

import (
	"database/sql"

	_ "github.com/lib/pq"
)

type PgTenantRepository struct {
	conn *sql.DB
}

// OpenPostgres opens a tenant database, verifies it is reachable and brings
// its schema up to date. It is the default dialer used by the Registry.
func OpenPostgres(dsn string) (TenantRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &PgTenantRepository{conn: db}, nil
}

func (db *PgTenantRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgTenantRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
