package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/tinychat/server/internal/domain/ids"
	"github.com/tinychat/server/internal/storage"
)

var (
	sharedOnce      sync.Once
	sharedInitErr   error
	sharedContainer *postgres.PostgresContainer
	sharedPool      *pgxpool.Pool
	sharedDBURL     string
)

const sharedContainerName = "tinychat-storage-db"

var testIDs = mustGenerator()

func mustGenerator() *ids.Generator {
	g, err := ids.NewGenerator(1)
	if err != nil {
		panic(err)
	}
	return g
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupShared()
	os.Exit(code)
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	initShared(t)
	resetDatabase(t, sharedPool)

	return sharedPool, sharedDBURL
}

func initShared(t *testing.T) {
	t.Helper()
	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

		container, err := postgres.Run(
			ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("tinychat"),
			postgres.WithUsername("tinychat"),
			postgres.WithPassword("tinychat_dev"),
			postgres.BasicWaitStrategies(),
			testcontainers.WithReuseByName(sharedContainerName),
		)
		if err != nil {
			sharedInitErr = err
			return
		}
		sharedContainer = container

		dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedInitErr = err
			return
		}
		sharedDBURL = dbURL

		if err := migrateWithRetry(ctx, dbURL); err != nil {
			sharedInitErr = err
			return
		}

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			sharedInitErr = err
			return
		}

		sharedPool = pool
	})

	require.NoError(t, sharedInitErr)
}

func cleanupShared() {
	if sharedPool != nil {
		sharedPool.Close()
	}
	// The container is reused by name across packages; leave it running.
}

// resetDatabase empties every tinychat table; users cascades to the rest.
func resetDatabase(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	require.NotNil(t, pool, "shared pool is nil")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `TRUNCATE invites, guild_members, guild_channels, guilds, users CASCADE`)
	require.NoError(t, err)
}

func insertUser(t *testing.T, ctx context.Context, repo *Repository, username, email string) *storage.User {
	t.Helper()
	user, err := repo.Users().Create(ctx, storage.User{
		ID:            testIDs.New(),
		Username:      username,
		Discriminator: "1000",
		Email:         email,
		Hash:          "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
	})
	require.NoError(t, err)
	return user
}

func insertGuild(t *testing.T, ctx context.Context, repo *Repository, owner *storage.User, name string) *storage.Guild {
	t.Helper()
	guild, err := repo.Guilds().CreateGuild(ctx, storage.Guild{
		ID:      testIDs.New(),
		Name:    name,
		OwnerID: owner.ID,
	})
	require.NoError(t, err)
	return guild
}

// migrateWithRetry covers the window where the container reports ready
// before postgres accepts connections.
func migrateWithRetry(ctx context.Context, databaseURL string) error {
	backoff := retry.WithMaxDuration(10*time.Second, retry.NewConstant(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(context.Context) error {
		if err := MigrateUp(databaseURL, ""); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
