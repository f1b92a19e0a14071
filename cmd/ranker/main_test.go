package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbuy-ranker/internal/domain"
)

const (
	swap    = "0x1111111111111111111111111111111111111111"
	buyer   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	seller  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	tokenID = "0xedcad4bd04f59e8fcc7c5fc7547e5112ae9923df"
)

func transferJSON(hash string, block int, from, to, amount string) string {
	return fmt.Sprintf(`{"blockNumber":%d,"fromAddress":%q,"toAddress":%q,"amount":%q,"decimals":18,"parentHash":%q}`,
		block, from, to, amount, hash)
}

// newExplorer serves one page of history and counts requests.
func newExplorer(t *testing.T, page1 ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/tokens/"+tokenID+"/transfers" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprintf(w, `{"result":[%s]}`, strings.Join(page1, ","))
			return
		}
		fmt.Fprint(w, `{"result":[]}`)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func setEnv(t *testing.T, explorerURL string) {
	t.Helper()
	t.Setenv("EXPLORER_BASE_URL", explorerURL)
	t.Setenv("TOKEN_ADDRESS", tokenID)
	t.Setenv("SWAP_ADDRESSES", swap)
	t.Setenv("START_BLOCK", "100")
	t.Setenv("PAGE_DELAY", "0s")
	t.Setenv("LOG_LEVEL", "error")
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	stdout, stderr = &out, io.Discard
	t.Cleanup(func() { stdout, stderr = os.Stdout, os.Stderr })

	err := newApp().Run(append([]string{"ranker"}, args...))
	return out.String(), err
}

func TestRun_MemoryBackendJSON(t *testing.T) {
	ts, _ := newExplorer(t,
		transferJSON("0xh3", 110, swap, buyer, "10000000000000000000"),
		transferJSON("0xh2", 105, seller, swap, "3000000000000000000"),
		transferJSON("0xh1", 95, swap, seller, "50000000000000000000"),
	)
	setEnv(t, ts.URL)

	out, err := runApp(t, "--backend", "memory", "run", "--json")
	require.NoError(t, err)

	var snap domain.RankingSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, int64(100), snap.StartBlock)
	assert.Equal(t, 2, snap.NewRecords, "the transfer below the start block is not ingested")
	require.Len(t, snap.Rankings, 2)
	assert.Equal(t, buyer, snap.Rankings[0].Address)
	assert.Equal(t, "10", snap.Rankings[0].NetPurchase.String())
	assert.Equal(t, seller, snap.Rankings[1].Address)
	assert.Equal(t, "-3", snap.Rankings[1].NetPurchase.String())
}

func TestRun_FileBackendResumes(t *testing.T) {
	ts, calls := newExplorer(t,
		transferJSON("0xh2", 105, swap, buyer, "4000000000000000000"),
	)
	setEnv(t, ts.URL)
	dir := t.TempDir()
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("LEDGER_PATH", filepath.Join(dir, "transfers.json"))
	t.Setenv("RANKINGS_PATH", filepath.Join(dir, "rankings.json"))

	_, err := runApp(t, "run")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "page 1 then the empty page 2")

	// Second run stops at the known record on page 1.
	_, err = runApp(t, "run", "--json")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	out, err := runApp(t, "rankings", "--csv")
	require.NoError(t, err)
	assert.Equal(t, "rank,address,net_purchase,buy,sell\n1,"+buyer+",4,4,0\n", out)

	out, err = runApp(t, "rankings", "--message", "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "🏆 Net Purchase Ranking (Top 1)")
	assert.Contains(t, out, "`0xaaaa...aaaa`: 4.00")
}

func TestRun_ExplorerFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)
	setEnv(t, ts.URL)

	_, err := runApp(t, "--backend", "memory", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ranking unavailable this run")
	assert.Contains(t, err.Error(), "status 503")
}

func TestRankings_NoneSaved(t *testing.T) {
	setEnv(t, "http://127.0.0.1:0")

	_, err := runApp(t, "--backend", "memory", "rankings")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ranking saved yet")
}

func TestLoadConfig_InvalidBackendFlag(t *testing.T) {
	setEnv(t, "http://127.0.0.1:0")

	_, err := runApp(t, "--backend", "bolt", "rankings")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BACKEND")
}

func TestMigrate_RequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("CLICKHOUSE_DSN", "")

	_, err := runApp(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}
