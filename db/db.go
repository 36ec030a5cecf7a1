package db

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/deemkeen/federation/domain"
	"github.com/deemkeen/federation/util"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

// GetDB opens the configured database once and runs the migrations.
func GetDB() *DB {
	dbOnce.Do(func() {
		path := "database.db"
		if conf, err := util.ReadConf(); err == nil && conf.Conf.DbPath != "" {
			path = conf.Conf.DbPath
		}

		db, err := Open(util.ResolveFilePath(path))
		if err != nil {
			panic(err)
		}
		dbInstance = db
	})

	return dbInstance
}

// Open connects to the sqlite database at dsn and brings the schema up to date.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	var journalMode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA cache_size = -16000")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")

	db := &DB{db: sqlDB}
	if err := db.RunMigrations(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			log.Printf("error in transaction: %s", err)
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}

// Remote actor queries
const (
	sqlInsertRemoteActor = `INSERT INTO remote_actors(id, protocol, identifier, username, domain, display_name, summary, inbox_uri, public_key_pem, avatar_url, last_fetched_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                            ON CONFLICT(identifier) DO UPDATE SET username = excluded.username, domain = excluded.domain, display_name = excluded.display_name,
                            summary = excluded.summary, inbox_uri = excluded.inbox_uri, public_key_pem = excluded.public_key_pem,
                            avatar_url = excluded.avatar_url, last_fetched_at = excluded.last_fetched_at`
	sqlSelectRemoteActorByIdentifier = `SELECT id, protocol, identifier, username, domain, display_name, summary, inbox_uri, public_key_pem, avatar_url, last_fetched_at FROM remote_actors WHERE identifier = ?`
	sqlDeleteRemoteActor             = `DELETE FROM remote_actors WHERE identifier = ?`
)

// SaveRemoteActor inserts the actor or refreshes the cached copy.
func (db *DB) SaveRemoteActor(actor *domain.RemoteActor) error {
	if actor.Id == uuid.Nil {
		actor.Id = uuid.New()
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRemoteActor,
			actor.Id.String(),
			actor.Protocol,
			actor.Identifier,
			actor.Username,
			actor.Domain,
			actor.DisplayName,
			actor.Summary,
			actor.InboxURI,
			actor.PublicKeyPem,
			actor.AvatarURL,
			actor.LastFetchedAt,
		)
		return err
	})
}

func (db *DB) ReadRemoteActor(identifier string) (error, *domain.RemoteActor) {
	row := db.db.QueryRow(sqlSelectRemoteActorByIdentifier, identifier)
	var actor domain.RemoteActor
	var idStr string
	var displayName, summary, inbox, avatar sql.NullString
	err := row.Scan(
		&idStr,
		&actor.Protocol,
		&actor.Identifier,
		&actor.Username,
		&actor.Domain,
		&displayName,
		&summary,
		&inbox,
		&actor.PublicKeyPem,
		&avatar,
		&actor.LastFetchedAt,
	)
	if err != nil {
		return err, nil
	}
	actor.Id, _ = uuid.Parse(idStr)
	actor.DisplayName = displayName.String
	actor.Summary = summary.String
	actor.InboxURI = inbox.String
	actor.AvatarURL = avatar.String
	return nil, &actor
}

func (db *DB) DeleteRemoteActor(identifier string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRemoteActor, identifier)
		return err
	})
}

// Received entity queries
const (
	sqlInsertReceivedEntity = `INSERT INTO received_entities(id, entity_id, protocol, variant, actor_id, target_id, receiving_actor_id, raw_payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                               ON CONFLICT(protocol, entity_id) DO NOTHING`
	sqlSelectReceivedEntity = `SELECT id, entity_id, protocol, variant, actor_id, target_id, receiving_actor_id, raw_payload, created_at FROM received_entities WHERE protocol = ? AND entity_id = ?`
	sqlCountReceivedEntities = `SELECT COUNT(*) FROM received_entities`
)

// RecordReceivedEntity logs an inbound entity. It reports false when the
// same entity was recorded before.
func (db *DB) RecordReceivedEntity(rec *domain.ReceivedEntity) (error, bool) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertReceivedEntity,
			rec.Id.String(),
			rec.EntityID,
			rec.Protocol,
			rec.Variant,
			rec.ActorID,
			rec.TargetID,
			rec.ReceivingActorID,
			rec.RawPayload,
			rec.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return err, inserted
}

func (db *DB) ReadReceivedEntity(protocol, entityID string) (error, *domain.ReceivedEntity) {
	row := db.db.QueryRow(sqlSelectReceivedEntity, protocol, entityID)
	var rec domain.ReceivedEntity
	var idStr string
	err := row.Scan(
		&idStr,
		&rec.EntityID,
		&rec.Protocol,
		&rec.Variant,
		&rec.ActorID,
		&rec.TargetID,
		&rec.ReceivingActorID,
		&rec.RawPayload,
		&rec.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	rec.Id, _ = uuid.Parse(idStr)
	return nil, &rec
}

func (db *DB) CountReceivedEntities() (error, int) {
	var n int
	err := db.db.QueryRow(sqlCountReceivedEntities).Scan(&n)
	return err, n
}

// Relationship queries
const (
	sqlInsertRelationship = `INSERT INTO relationships(id, actor_id, target_id, protocol, accepted, created_at) VALUES (?, ?, ?, ?, ?, ?)
                             ON CONFLICT(actor_id, target_id) DO NOTHING`
	sqlAcceptRelationship  = `UPDATE relationships SET accepted = 1 WHERE actor_id = ? AND target_id = ?`
	sqlDeleteRelationship  = `DELETE FROM relationships WHERE actor_id = ? AND target_id = ?`
	sqlSelectRelationships = `SELECT id, actor_id, target_id, protocol, accepted, created_at FROM relationships WHERE target_id = ? ORDER BY created_at`
)

func (db *DB) CreateRelationship(rel *domain.Relationship) error {
	if rel.Id == uuid.Nil {
		rel.Id = uuid.New()
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRelationship,
			rel.Id.String(),
			rel.ActorID,
			rel.TargetID,
			rel.Protocol,
			rel.Accepted,
			rel.CreatedAt,
		)
		return err
	})
}

func (db *DB) AcceptRelationship(actorID, targetID string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptRelationship, actorID, targetID)
		return err
	})
}

func (db *DB) DeleteRelationship(actorID, targetID string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRelationship, actorID, targetID)
		return err
	})
}

// ReadFollowers returns the actors following targetID.
func (db *DB) ReadFollowers(targetID string) (error, *[]domain.Relationship) {
	rows, err := db.db.Query(sqlSelectRelationships, targetID)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		var rel domain.Relationship
		var idStr string
		if err := rows.Scan(&idStr, &rel.ActorID, &rel.TargetID, &rel.Protocol, &rel.Accepted, &rel.CreatedAt); err != nil {
			return err, &rels
		}
		rel.Id, _ = uuid.Parse(idStr)
		rels = append(rels, rel)
	}
	if err = rows.Err(); err != nil {
		return err, &rels
	}

	return nil, &rels
}
