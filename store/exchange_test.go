package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tradesync/crypto"
)

func TestExchangeUpsert_EmptyCredentialsDoNotOverwrite(t *testing.T) {
	st := setupTestStore(t)

	require.NoError(t, st.Exchange().Upsert(&ExchangeAccount{
		UserID:    "user-1",
		Exchange:  "bybit",
		Label:     "Main",
		APIKey:    "key-1",
		SecretKey: "secret-1",
		Enabled:   true,
	}))

	// update that only flips enabled; empty credentials must survive
	require.NoError(t, st.Exchange().Upsert(&ExchangeAccount{
		UserID:   "user-1",
		Exchange: "bybit",
		Label:    "Main",
		Enabled:  false,
	}))

	acct, err := st.Exchange().Get("user-1", "bybit")
	require.NoError(t, err)
	require.Equal(t, "key-1", acct.APIKey)
	require.Equal(t, "secret-1", acct.SecretKey)
	require.False(t, acct.Enabled)
}

func TestExchangeCredentials_EncryptedAtRest(t *testing.T) {
	st := setupTestStore(t)
	svc := crypto.NewServiceWithKey("test-key")
	st.SetCryptoFuncs(svc.Encrypt, svc.Decrypt)

	require.NoError(t, st.Exchange().Upsert(&ExchangeAccount{
		UserID:    "user-1",
		Exchange:  "bybit",
		Label:     "Main",
		APIKey:    "plain-api-key",
		SecretKey: "plain-secret",
		Enabled:   true,
	}))

	// the raw column never holds the plaintext
	var storedKey string
	err := st.db.QueryRow(`SELECT api_key FROM exchanges WHERE user_id = ? AND exchange = ?`,
		"user-1", "bybit").Scan(&storedKey)
	require.NoError(t, err)
	require.NotEqual(t, "plain-api-key", storedKey)

	// reads transparently decrypt
	acct, err := st.Exchange().Get("user-1", "bybit")
	require.NoError(t, err)
	require.Equal(t, "plain-api-key", acct.APIKey)
	require.Equal(t, "plain-secret", acct.SecretKey)
}

func TestExchangeListAndDelete(t *testing.T) {
	st := setupTestStore(t)

	require.NoError(t, st.Exchange().Upsert(&ExchangeAccount{
		UserID: "user-1", Exchange: "bybit", Label: "A", APIKey: "k", SecretKey: "s",
	}))
	require.NoError(t, st.Exchange().Upsert(&ExchangeAccount{
		UserID: "user-1", Exchange: "binance", Label: "B", APIKey: "k", SecretKey: "s",
	}))
	require.NoError(t, st.Exchange().Upsert(&ExchangeAccount{
		UserID: "user-2", Exchange: "bybit", Label: "C", APIKey: "k", SecretKey: "s",
	}))

	accounts, err := st.Exchange().List("user-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	require.NoError(t, st.Exchange().Delete("user-1", "bybit"))
	accounts, err = st.Exchange().List("user-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "binance", accounts[0].Exchange)

	// other owners are untouched
	accounts, err = st.Exchange().List("user-2")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}
