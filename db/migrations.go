package db

import (
	"database/sql"
	"log"
)

const (
	// Remote actor cache, one row per actor URI or Diaspora handle
	sqlCreateRemoteActorsTable = `CREATE TABLE IF NOT EXISTS remote_actors (
		id TEXT NOT NULL PRIMARY KEY,
		protocol TEXT NOT NULL,
		identifier TEXT UNIQUE NOT NULL,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT,
		public_key_pem TEXT NOT NULL,
		avatar_url TEXT,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemoteActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_actors_domain ON remote_actors(domain);
	`

	// Inbound entity log (for deduplication & debugging)
	sqlCreateReceivedEntitiesTable = `CREATE TABLE IF NOT EXISTS received_entities (
		id TEXT NOT NULL PRIMARY KEY,
		entity_id TEXT NOT NULL,
		protocol TEXT NOT NULL,
		variant TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		target_id TEXT,
		receiving_actor_id TEXT,
		raw_payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(protocol, entity_id)
	)`

	sqlCreateReceivedEntitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_received_entities_actor_id ON received_entities(actor_id);
		CREATE INDEX IF NOT EXISTS idx_received_entities_created_at ON received_entities(created_at DESC);
	`

	// Follow relationships of remote actors
	sqlCreateRelationshipsTable = `CREATE TABLE IF NOT EXISTS relationships (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		protocol TEXT NOT NULL,
		accepted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, target_id)
	)`

	sqlCreateRelationshipsIndices = `
		CREATE INDEX IF NOT EXISTS idx_relationships_target_id ON relationships(target_id);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateRemoteActorsTable, "remote_actors"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateReceivedEntitiesTable, "received_entities"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateRelationshipsTable, "relationships"); err != nil {
			return err
		}

		if _, err := tx.Exec(sqlCreateRemoteActorsIndices); err != nil {
			log.Printf("Warning: Failed to create remote_actors indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateReceivedEntitiesIndices); err != nil {
			log.Printf("Warning: Failed to create received_entities indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateRelationshipsIndices); err != nil {
			log.Printf("Warning: Failed to create relationships indices: %v", err)
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	log.Printf("Table %s created or already exists", tableName)
	return nil
}
