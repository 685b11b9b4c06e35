package resolver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"hash/fnv"
	"sync"

	// Registers the "postgres" driver callers open the *sql.DB with.
	_ "github.com/lib/pq"

	"github.com/mirkobrombin/go-lockset/v1/acquire"
	lockerrors "github.com/mirkobrombin/go-lockset/v1/errors"
	"github.com/mirkobrombin/go-lockset/v1/lockset"
)

// Postgres implements acquire.Resolver with session-level advisory locks.
// Advisory locks are bound to the connection that took them, so each guard
// pins a dedicated connection from the pool until released. Blocking happens
// server-side in pg_advisory_lock, cancelled through the statement context.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Postgres resolver using the provided database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// advisoryKey maps a lock name onto the 64-bit advisory lock space.
func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// Acquire implements acquire.Resolver.
func (p *Postgres) Acquire(ctx context.Context, name string, mode lockset.Mode) (acquire.Guard, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	fn := "pg_advisory_lock"
	if mode == lockset.Read {
		fn = "pg_advisory_lock_shared"
	}
	key := advisoryKey(name)
	if _, err := conn.ExecContext(ctx, "SELECT "+fn+"($1)", key); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &postgresGuard{conn: conn, key: key, shared: mode == lockset.Read}, nil
}

type postgresGuard struct {
	conn   *sql.Conn
	key    int64
	shared bool

	mu       sync.Mutex
	released bool
}

// Release frees the advisory lock and returns its connection to the pool.
// If the unlock does not confirm, the session may still hold the lock, so the
// connection is discarded rather than returned for reuse; closing the session
// makes the server drop its advisory locks.
func (g *postgresGuard) Release(ctx context.Context) error {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return lockerrors.ErrNotHeld
	}
	g.released = true
	g.mu.Unlock()

	fn := "pg_advisory_unlock"
	if g.shared {
		fn = "pg_advisory_unlock_shared"
	}
	var ok bool
	err := g.conn.QueryRowContext(ctx, "SELECT "+fn+"($1)", g.key).Scan(&ok)
	if err != nil || !ok {
		_ = g.conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = g.conn.Close()
		if err != nil {
			return err
		}
		return lockerrors.ErrNotHeld
	}
	return g.conn.Close()
}
