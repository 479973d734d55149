package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonrpcStub answers the calls the commands make with empty data sets.
type jsonrpcStub struct {
	mu      sync.Mutex
	methods []string
}

func (s *jsonrpcStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64 `json:"id"`
		Params struct {
			Service string `json:"service"`
			Method  string `json:"method"`
			Args    []any  `json:"args"`
		} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	method := req.Params.Method
	if req.Params.Service == "object" && len(req.Params.Args) > 4 {
		method = fmt.Sprint(req.Params.Args[4])
	}
	s.mu.Lock()
	s.methods = append(s.methods, method)
	s.mu.Unlock()

	var result any
	switch method {
	case "authenticate":
		result = 2
	case "version":
		result = map[string]any{"server_version": "17.0"}
	case "search", "search_read":
		result = []any{}
	case "search_count":
		result = 0
	case "render_report":
		result = base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	default:
		result = true
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (s *jsonrpcStub) called(method string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.methods {
		if m == method {
			return true
		}
	}
	return false
}

type fixture struct {
	stub      *jsonrpcStub
	config    string
	reportDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stub := &jsonrpcStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	reportDir := filepath.Join(dir, "reports")
	content := fmt.Sprintf(`
[logging]
level = "error"
output = %q

[transport]
max_retries = 1

[instances.prod]
url = %q
db = "prod"
username = "admin"
password = "very-secret-password"

[cleanup]
report_dir = %q
`, filepath.Join(dir, "odoosweep.log"), srv.URL, reportDir)

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return &fixture{stub: stub, config: path, reportDir: reportDir}
}

func resetFlags() {
	configPath, envPath, logLevel = "", filepath.Join(os.TempDir(), "odoosweep-missing.env"), ""
	pingAll = false
	cleanupAll, cleanupLive, cleanupDays, cleanupGroups, outputFormat = false, false, 0, nil, "text"
	resetLive, resetYes = false, false
	resetDropCompanyDefaults, resetDropUserAccounts, resetDropMenus, resetDropGroups = false, false, false, false
	rpcFilter, rpcFields, rpcLimit, rpcOffset, rpcOrder = "", nil, 0, 0, ""
	rpcArgs, rpcKwargs, rpcOut = "", "", ""
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCommandStructure(t *testing.T) {
	want := []string{"cleanup", "config", "ping", "reset", "rpc", "serve", "version"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}

	var rpcOps []string
	for _, c := range rpcCmd.Commands() {
		rpcOps = append(rpcOps, c.Name())
	}
	assert.ElementsMatch(t, []string{"search", "search-read", "count", "read", "create", "write", "unlink", "call", "action", "fields", "report"}, rpcOps)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "odoosweep")
	assert.Contains(t, out, "Git Commit:")
}

func TestConfigValidate(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "", "config", "validate", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid (1 instance(s))")

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[logging]\nlevel = \"loud\"\n"), 0o600))
	out, _, err = execute(t, "", "config", "validate", "-c", bad)
	assert.Error(t, err)
	assert.Contains(t, out, "invalid logging.level")
	assert.Contains(t, out, "at least one instance")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "", "config", "show", "-c", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "[instances.prod]")
	assert.NotContains(t, out, "very-secret-password")
}

func TestPing(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "", "ping", "-c", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "prod: uid 2, server 17.0")
}

func TestCleanup_SimulatesByDefault(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "", "cleanup", "prod", "-c", f.config, "-o", "json")
	require.NoError(t, err)

	var rep struct {
		Engine     string         `json:"engine"`
		Instance   string         `json:"instance"`
		Simulation bool           `json:"simulation"`
		Success    bool           `json:"success"`
		Summary    map[string]int `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "cleanup", rep.Engine)
	assert.Equal(t, "prod", rep.Instance)
	assert.True(t, rep.Simulation)
	assert.True(t, rep.Success)
	assert.Contains(t, rep.Summary, "totalRecordsProcessed")

	assert.False(t, f.stub.called("unlink"), "simulation must not delete")
	assert.False(t, f.stub.called("clear_caches"))

	saved, err := os.ReadDir(f.reportDir)
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestCleanup_RejectsUnknownGroupAndInstance(t *testing.T) {
	f := newFixture(t)

	_, _, err := execute(t, "", "cleanup", "prod", "-c", f.config, "--group", "everything")
	assert.ErrorContains(t, err, "everything")

	_, _, err = execute(t, "", "cleanup", "dev", "-c", f.config)
	assert.ErrorContains(t, err, `unknown instance "dev"`)

	_, _, err = execute(t, "", "cleanup", "prod", "-c", f.config, "-o", "xml")
	assert.ErrorContains(t, err, "invalid --output")
}

func TestReset_LiveNeedsConfirmation(t *testing.T) {
	f := newFixture(t)

	_, stderr, err := execute(t, "staging\n", "reset", "prod", "-c", f.config, "--live")
	assert.ErrorContains(t, err, "confirmation did not match")
	assert.Contains(t, stderr, "Type the instance name (prod)")
	assert.False(t, f.stub.called("search_read"), "nothing runs without confirmation")

	out, _, err := execute(t, "prod\n", "reset", "prod", "-c", f.config, "--live")
	require.NoError(t, err)
	assert.Contains(t, out, "reset on prod")
}

func TestReset_SimulationSkipsPrompt(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "", "reset", "prod", "-c", f.config, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "engine: reset")
	assert.Contains(t, out, "simulation: true")
}

func TestRPCCount(t *testing.T) {
	f := newFixture(t)

	out, _, err := execute(t, "", "rpc", "count", "prod", "res.partner", "-c", f.config, "--filter", `[["name","like","Test%"]]`)
	require.NoError(t, err)

	var env struct {
		Success bool `json:"success"`
		Data    int  `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.True(t, env.Success)
	assert.Equal(t, 0, env.Data)
}

func TestRPCReportWritesFile(t *testing.T) {
	f := newFixture(t)
	dest := filepath.Join(t.TempDir(), "invoice.pdf")

	_, _, err := execute(t, "", "rpc", "report", "prod", "account.report_invoice", "7", "-c", f.config, "--out", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestRPCInputErrors(t *testing.T) {
	f := newFixture(t)

	_, _, err := execute(t, "", "rpc", "search", "prod", "res.partner", "-c", f.config, "--filter", `[["bad field","=",1]]`)
	assert.Error(t, err)

	_, _, err = execute(t, "", "rpc", "unlink", "prod", "res.partner", "abc", "-c", f.config)
	assert.ErrorContains(t, err, `invalid record id "abc"`)

	_, _, err = execute(t, "", "rpc", "create", "prod", "res.partner", "{not json", "-c", f.config)
	assert.ErrorContains(t, err, "invalid values JSON object")
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseIDs([]string{"0"})
	assert.Error(t, err)
	_, err = parseIDs([]string{","})
	assert.Error(t, err)
}
