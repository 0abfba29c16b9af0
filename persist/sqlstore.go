package persist

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/graph"
	"github.com/teranos/typegraph/sym"
)

// SQLiteExtension is the conventional file extension for sqlite snapshots.
const SQLiteExtension = ".tgdb"

// elemSep joins set members and choice lists into one TEXT column. The unit
// separator never appears in attribute values.
const elemSep = "\x1f"

const createDocumentTable = `
CREATE TABLE IF NOT EXISTS document (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const createEntitiesTable = `
CREATE TABLE IF NOT EXISTS entities (
	id      INTEGER PRIMARY KEY,
	variety TEXT NOT NULL CHECK (variety IN ('node', 'relation')),
	is_isa  INTEGER NOT NULL DEFAULT 0,
	from_id INTEGER,
	to_id   INTEGER
)`

// Endpoint columns carry no foreign key: builtins are referenced by id but
// never stored.
const createAttributesTable = `
CREATE TABLE IF NOT EXISTS attributes (
	entity_id   INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	key         TEXT NOT NULL,
	kind        TEXT NOT NULL,
	value       TEXT NOT NULL DEFAULT '',
	elems       TEXT NOT NULL DEFAULT '',
	final       INTEGER NOT NULL DEFAULT 0,
	readonly    INTEGER NOT NULL DEFAULT 0,
	system      INTEGER NOT NULL DEFAULT 0,
	has_default INTEGER NOT NULL DEFAULT 0,
	dflt        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entity_id, key)
)`

// Store is a sqlite snapshot of one model. Save replaces the whole snapshot;
// Load reconstructs a model from it.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.SugaredLogger
}

// OpenStore opens (creating if needed) a sqlite snapshot store. log may be
// nil.
func OpenStore(path string, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Debugw("opening snapshot store", "path", path, "symbol", sym.DB)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	// WAL for concurrent reads during writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	for _, stmt := range []string{createDocumentTable, createEntitiesTable, createAttributesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create schema")
		}
	}

	log.Infow("snapshot store opened", "path", path, "symbol", sym.DB,
		"wal_mode", true, "foreign_keys", true)
	return &Store{db: db, path: path, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the store's file path.
func (s *Store) Path() string { return s.path }

// Save replaces the snapshot with the model's current non-builtin entities.
func (s *Store) Save(m *graph.Model) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin save")
	}
	defer tx.Rollback()

	for _, table := range []string{"attributes", "entities", "document"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}
	if _, err := tx.Exec("INSERT INTO document (key, value) VALUES ('guid', ?)",
		m.GUID().String()); err != nil {
		return errors.Wrap(err, "save guid")
	}

	nodes, relations := 0, 0
	for _, n := range m.Nodes() {
		if n.ID() < graph.ReservedID {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO entities (id, variety) VALUES (?, 'node')", n.ID()); err != nil {
			return errors.Wrapf(err, "save node %d", n.ID())
		}
		if err := saveAttrs(tx, n); err != nil {
			return err
		}
		nodes++
	}
	for _, r := range m.Relations() {
		if r.ID() < graph.ReservedID {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO entities (id, variety, is_isa, from_id, to_id) VALUES (?, 'relation', ?, ?, ?)",
			r.ID(), r.IsIsa(), r.From().ID(), r.To().ID()); err != nil {
			return errors.Wrapf(err, "save relation %d", r.ID())
		}
		if !r.IsIsa() {
			if err := saveAttrs(tx, r); err != nil {
				return err
			}
		}
		relations++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit save")
	}
	s.log.Infow("model saved", "symbol", sym.DB, "path", s.path,
		"nodes", nodes, "relations", relations)
	return nil
}

func saveAttrs(tx *sql.Tx, e graph.Entity) error {
	store := e.Attrs()
	local := store.LocalItems()
	for _, k := range store.Keys(true, false) {
		it, ok := local[k]
		if !ok {
			continue
		}
		rec := recordItem(it)
		if _, err := tx.Exec(
			`INSERT INTO attributes
				(entity_id, key, kind, value, elems, final, readonly, system, has_default, dflt)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID(), rec.Key, rec.Kind, rec.Value, strings.Join(rec.Elems, elemSep),
			rec.Final, rec.ReadOnly, rec.System, rec.HasDef, rec.Default); err != nil {
			return errors.Wrapf(err, "save attribute %s of %s", rec.Key, e.IDString())
		}
	}
	return nil
}

// Load reconstructs the snapshotted model. Same two-phase flow as the XML
// loader: entities first, then endpoint binding with isa edges ahead of the
// rest; invalid relations are dropped and logged.
func (s *Store) Load() (*graph.Model, error) {
	var guidStr string
	err := s.db.QueryRow("SELECT value FROM document WHERE key = 'guid'").Scan(&guidStr)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "store holds no model")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load guid")
	}
	guid, err := uuid.Parse(guidStr)
	if err != nil {
		return nil, errors.Wrapf(err, "stored guid %q", guidStr)
	}

	m := graph.NewModelWithGUID(guid, s.log)

	rows, err := s.db.Query(
		"SELECT id, variety, is_isa, from_id, to_id FROM entities ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "load entities")
	}
	defer rows.Close()

	var shells []relationShell
	for rows.Next() {
		var (
			id           int64
			variety      string
			isIsa        bool
			fromID, toID sql.NullInt64
		)
		if err := rows.Scan(&id, &variety, &isIsa, &fromID, &toID); err != nil {
			return nil, errors.Wrap(err, "scan entity")
		}
		switch variety {
		case "node":
			n, err := m.RestoreNode(id)
			if err != nil {
				return nil, errors.Wrapf(err, "node %d", id)
			}
			if err := s.loadAttrs(n, !isIsa); err != nil {
				return nil, err
			}
		case "relation":
			r, err := m.RestoreRelation(id, isIsa)
			if err != nil {
				return nil, errors.Wrapf(err, "relation %d", id)
			}
			if err := s.loadAttrs(r, !isIsa); err != nil {
				return nil, err
			}
			shells = append(shells, relationShell{rel: r, from: fromID.Int64, to: toID.Int64})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "load entities")
	}

	bindShells(m, shells, s.log)

	s.log.Infow("model loaded", "symbol", sym.DB, "path", s.path,
		"guid", guidStr, "relations", len(shells))
	return m, nil
}

func (s *Store) loadAttrs(e graph.Entity, restore bool) error {
	if !restore {
		return nil
	}
	rows, err := s.db.Query(
		`SELECT key, kind, value, elems, final, readonly, system, has_default, dflt
		FROM attributes WHERE entity_id = ?`, e.ID())
	if err != nil {
		return errors.Wrapf(err, "load attributes of %s", e.IDString())
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec   attrRecord
			elems string
		)
		if err := rows.Scan(&rec.Key, &rec.Kind, &rec.Value, &elems,
			&rec.Final, &rec.ReadOnly, &rec.System, &rec.HasDef, &rec.Default); err != nil {
			return errors.Wrap(err, "scan attribute")
		}
		if elems != "" {
			rec.Elems = strings.Split(elems, elemSep)
		}
		if err := applyRecord(e.Attrs(), rec); err != nil {
			s.log.Warnw("skipping unrestorable attribute",
				"entity", e.IDString(), "key", rec.Key, "error", err)
		}
	}
	return rows.Err()
}
