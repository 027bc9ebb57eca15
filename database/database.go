package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"santiago-a-pie/config"
)

// Database wraps the MySQL connection used by all services.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection and verifies it.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Database connection established to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// NewDatabaseFromConn wraps an existing connection. Used by tests.
func NewDatabaseFromConn(db *sql.DB) *Database {
	return &Database{db: db}
}

// DB exposes the underlying database handle for wiring
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

func validateResult(operation string, result sql.Result, err error, checkRowsAffected bool) error {
	if err != nil {
		log.Errorf("Error in %s: %v", operation, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		log.Errorf("Failed to get status of %s: %v", operation, err)
		return err
	}
	if checkRowsAffected && rows != 1 {
		err := fmt.Errorf("%s: expected to affect 1 row, affected %d", operation, rows)
		log.Errorf("%v", err)
		return err
	}
	return nil
}
