// Package pg wires PostgreSQL into the entitlement engine using pgx/v5.
//
// It provides a retrying Connect, goose migrations embedded in the binary
// (see the migrations directory), a WithTx helper that commits or rolls back
// around a callback, and error classifiers for the constraint violations the
// stores rely on (for example the unique index that keeps one active customer
// mapping per user).
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//	    return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, logger); err != nil {
//	    return err
//	}
//
// Every store in the module accepts the DB interface, which *pgxpool.Pool
// satisfies.
package pg
