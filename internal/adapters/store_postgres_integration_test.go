//go:build integration

package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"repoforge/internal/ports"
)

var (
	postgresOnce      sync.Once
	postgresDSN       string
	postgresErr       error
	postgresDatabases atomic.Int64
)

func init() {
	extraStoreFactories["postgres"] = func(t *testing.T) ports.StorePort {
		if testing.Short() {
			t.Skip("skipping postgres store in short mode")
		}
		dsn := freshPostgresDatabase(t)
		store, err := OpenSQLStore(context.Background(), "postgres", dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}
}

// sharedPostgres starts one container for the whole package run. It is
// reaped by testcontainers when the test binary exits.
func sharedPostgres(t *testing.T) string {
	t.Helper()
	postgresOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("repoforge"),
			postgres.WithUsername("forge"),
			postgres.WithPassword("forge"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			postgresErr = err
			return
		}
		postgresDSN, postgresErr = container.ConnectionString(ctx, "sslmode=disable")
		if postgresErr != nil {
			_ = testcontainers.TerminateContainer(container)
		}
	})
	require.NoError(t, postgresErr)
	return postgresDSN
}

func freshPostgresDatabase(t *testing.T) string {
	t.Helper()
	base := sharedPostgres(t)
	name := fmt.Sprintf("store_%d", postgresDatabases.Add(1))

	admin, err := sql.Open("pgx", base)
	require.NoError(t, err)
	defer admin.Close()
	_, err = admin.ExecContext(context.Background(), "CREATE DATABASE "+name)
	require.NoError(t, err)

	parsed, err := url.Parse(base)
	require.NoError(t, err)
	parsed.Path = "/" + name
	return parsed.String()
}
