package native

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/lispc/lispc/pkg/vm"
)

// GlobalStore backs `(db-save! key val)` / `(db-load key)` with a local
// SQLite file, persisting selected globals across REPL sessions. A
// single key/value table is all this native pair needs.
type GlobalStore struct {
	db *sql.DB
}

// OpenGlobalStore opens (creating if necessary) a SQLite database at
// path holding persisted global bindings.
func OpenGlobalStore(path string) (*GlobalStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	const schema = `CREATE TABLE IF NOT EXISTS globals (key TEXT PRIMARY KEY, value TEXT NOT NULL)`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, err
	}
	return &GlobalStore{db: db}, nil
}

// Close releases the underlying database connection.
func (g *GlobalStore) Close() error {
	return g.db.Close()
}

// Register installs db-save!/db-load into machine's globals.
func (g *GlobalStore) Register(machine *vm.VM) {
	machine.DefineNative("db-save!", vm.Arity{Kind: vm.ArityNary, Count: 2}, g.save)
	machine.DefineNative("db-load", vm.Arity{Kind: vm.ArityNary, Count: 1}, g.load)
}

func (g *GlobalStore) save(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	keyObj, valObj, err := arity2("db-save!", args)
	if err != nil {
		return nil, err
	}
	key, err := asString("db-save!", keyObj)
	if err != nil {
		return nil, err
	}
	val, err := asString("db-save!", valObj)
	if err != nil {
		return nil, err
	}
	const upsert = `INSERT INTO globals (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := g.db.ExecContext(context.Background(), upsert, key, val); err != nil {
		return nil, &vm.Error{Msg: "db-save!: " + err.Error()}
	}
	return &vm.TrueObject{}, nil
}

func (g *GlobalStore) load(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("db-load", args)
	if err != nil {
		return nil, err
	}
	key, err := asString("db-load", a)
	if err != nil {
		return nil, err
	}
	var val string
	row := g.db.QueryRowContext(context.Background(), `SELECT value FROM globals WHERE key = ?`, key)
	if err := row.Scan(&val); err == sql.ErrNoRows {
		return &vm.NilObject{}, nil
	} else if err != nil {
		return nil, &vm.Error{Msg: "db-load: " + err.Error()}
	}
	return &vm.StringObject{Val: val}, nil
}
