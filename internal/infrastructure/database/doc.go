// Package database provides SQLite connectivity for Fox Bridge.
//
// The database only holds the session event log; session state itself lives
// in memory and is rebuilt from credential directories at boot.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned up/down migrations registered by the migrations package
//   - Health checks for the API
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
