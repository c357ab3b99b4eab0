package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

func openTestStore(t *testing.T) *AccountStore {
	t.Helper()

	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAndListPreservesOrder(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Unix(1700000000, 0).UTC()

	require.NoError(t, store.UpsertAccount(ctx, crawler.Account{Identity: "acct2", LoginValid: true, CheckedAt: t0}))
	require.NoError(t, store.UpsertAccount(ctx, crawler.Account{Identity: "acct1", LoginValid: true, CheckedAt: t0}))
	require.NoError(t, store.UpsertAccount(ctx, crawler.Account{Identity: "acct2", LoginValid: false, CheckedAt: t0.Add(time.Minute)}))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.Equal(t, "acct2", accounts[0].Identity)
	require.False(t, accounts[0].LoginValid)
	require.True(t, t0.Add(time.Minute).Equal(accounts[0].CheckedAt))
	require.Equal(t, "acct1", accounts[1].Identity)
	require.True(t, accounts[1].LoginValid)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "accounts.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.UpsertAccount(ctx, crawler.Account{Identity: "xhs", LoginValid: true, CheckedAt: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	accounts, err := reopened.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "xhs", accounts[0].Identity)
}

func TestValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
	require.Error(t, openTestStore(t).UpsertAccount(context.Background(), crawler.Account{}))
}
