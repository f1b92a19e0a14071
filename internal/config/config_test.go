package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0xedcad4bd04f59e8fcc7c5fc7547e5112ae9923df", cfg.TokenAddress)
	assert.Equal(t, DefaultSwapAddresses, cfg.SwapAddresses)
	assert.Equal(t, int64(167429702), cfg.StartBlock)
	assert.Equal(t, 2500*time.Millisecond, cfg.PageDelay)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 10, cfg.TopN)
	assert.Equal(t, BackendFile, cfg.StorageBackend)
	assert.Equal(t, "transfers.json", cfg.LedgerPath)
	assert.Equal(t, 60*time.Second, cfg.Cooldown)
	assert.Equal(t, "1000000000", cfg.TotalSupply.String())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TOKEN_ADDRESS", "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD")
	t.Setenv("SWAP_ADDRESSES", " 0x1111111111111111111111111111111111111111 ,,0x2222222222222222222222222222222222222222")
	t.Setenv("START_BLOCK", "42")
	t.Setenv("PAGE_DELAY", "0s")
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("REFRESH_SCHEDULE", "*/5 * * * *")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", cfg.TokenAddress)
	assert.Equal(t, []string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	}, cfg.SwapAddresses)
	assert.Equal(t, int64(42), cfg.StartBlock)
	assert.Equal(t, time.Duration(0), cfg.PageDelay)
	assert.Equal(t, BackendSQLite, cfg.StorageBackend)
	assert.Equal(t, "*/5 * * * *", cfg.RefreshSchedule)
}

func TestFromEnv_TrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 192.168.7.9/16,::1")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.1/32"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("::1/128"),
	}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "10.0.0.1,proxy.local,10.0.0.0/33")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `TRUSTED_PROXIES: invalid address "proxy.local"`)
	assert.Contains(t, err.Error(), `TRUSTED_PROXIES: invalid CIDR "10.0.0.0/33"`)
}

func TestFromEnv_ReportsAllErrors(t *testing.T) {
	t.Setenv("TOKEN_ADDRESS", "not-an-address")
	t.Setenv("START_BLOCK", "abc")
	t.Setenv("PAGE_DELAY", "soon")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("REFRESH_SCHEDULE", "every minute")

	cfg, err := FromEnv()
	require.Error(t, err)
	assert.Nil(t, cfg)

	msg := err.Error()
	assert.Contains(t, msg, "TOKEN_ADDRESS")
	assert.Contains(t, msg, "START_BLOCK: invalid integer")
	assert.Contains(t, msg, "PAGE_DELAY: invalid duration")
	assert.Contains(t, msg, "POSTGRES_DSN is required")
	assert.Contains(t, msg, "REFRESH_SCHEDULE")
}

func TestValidate(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	cfg.StorageBackend = "bolt"
	cfg.TopN = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BACKEND")
	assert.Contains(t, err.Error(), "TOP_N")
}

func TestSplitTrim(t *testing.T) {
	assert.Nil(t, splitTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitTrim(" A , ,b "))
}
