package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hotcalls-poller/internal/config"
	"github.com/sells-group/hotcalls-poller/internal/resilience"
	"github.com/sells-group/hotcalls-poller/internal/store"
)

// openStore connects to the configured backend, retrying transient
// connection failures per the retry policy.
func openStore(ctx context.Context, sc config.StoreConfig, policy resilience.Policy) (store.Handle, error) {
	policy.OnRetry = resilience.LogRetry("open " + sc.Driver + " store")
	h, err := resilience.Retry(ctx, policy, func(ctx context.Context) (store.Handle, error) {
		return dialStore(ctx, sc)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", sc.Driver)
	}
	return h, nil
}

func dialStore(ctx context.Context, sc config.StoreConfig) (store.Handle, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		st, err := store.NewSQLite(sc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case config.DriverPostgres:
		st, err := store.NewPostgres(ctx, sc.DatabaseURL, sc.MaxConns)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}
