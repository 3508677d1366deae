package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/apitest/packages/core/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default so commands can run more
// than once in one process.
func resetFlags(t *testing.T) {
	t.Helper()
	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				require.NoError(t, f.Value.Set(f.DefValue))
				f.Changed = false
			})
		}
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	resetFlags(t)
	var stdout, stderr bytes.Buffer
	code := run(append(args, "--no-color"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newProject(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "apitest.yaml"), fmt.Sprintf(`environments:
  dev:
    baseUrl: %s
`, baseURL))
	return dir
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status": "ok"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

const healthTest = `test "health"
endpoint "{{baseUrl}}/health"
expect
  status 200
  body contains "ok"
`

const missingTest = `test "missing"
endpoint "{{baseUrl}}/missing"
expect
  status 200
`

func TestTestCommand_Passing(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	writeFile(t, filepath.Join(dir, "health.apitest"), healthTest)

	code, stdout, _ := execute(t, "test", "-d", dir)

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "✓ health")
	assert.Contains(t, stdout, "1 passed, 1 total")
	assert.Contains(t, stdout, "Latency: 1 requests")
}

func TestTestCommand_RunAlias(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	path := filepath.Join(dir, "health.apitest")
	writeFile(t, path, healthTest)

	code, _, _ := execute(t, "run", path, "-d", dir)
	assert.Equal(t, ExitSuccess, code)
}

func TestTestCommand_Failing(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	writeFile(t, filepath.Join(dir, "missing.apitest"), missingTest)

	code, stdout, _ := execute(t, "test", "-d", dir)

	assert.Equal(t, ExitTestFailure, code)
	assert.Contains(t, stdout, "expected status 200, got 404")
}

func TestTestCommand_ParseError(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	writeFile(t, filepath.Join(dir, "a.apitest"), healthTest)
	writeFile(t, filepath.Join(dir, "b.apitest"), `test "x"
endpoint "unterminated`)

	code, stdout, _ := execute(t, "test", "-d", dir)

	assert.Equal(t, ExitParseError, code)
	assert.Contains(t, stdout, "unterminated string")
	assert.Contains(t, stdout, "✓ health")
}

func TestTestCommand_ConfigError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "apitest.yaml"), "timeout: [")
	writeFile(t, filepath.Join(dir, "health.apitest"), healthTest)

	code, _, stderr := execute(t, "test", "-d", dir)

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "invalid config")
}

func TestTestCommand_UsageErrors(t *testing.T) {
	dir := newProject(t, "http://localhost")
	writeFile(t, filepath.Join(dir, "health.apitest"), healthTest)

	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"unknown output", []string{"test", "-d", dir, "-o", "xml"}, "unknown output format"},
		{"bad timeout", []string{"test", "-d", dir, "--timeout", "soon"}, "invalid timeout"},
		{"no files", []string{"test", "-d", t.TempDir()}, "no .apitest files found"},
		{"missing path", []string{"test", filepath.Join(dir, "nope.apitest")}, "cannot access"},
		{"bad log level", []string{"test", "-d", dir, "--log-level", "loud"}, "loud"},
		{"proxy without scheme", []string{"test", "-d", dir, "--proxy", "localhost:8080"}, "invalid proxy URL"},
		{"proxy without host", []string{"test", "-d", dir, "--proxy", "http://"}, "missing host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			assert.Equal(t, ExitUsageError, code)
			assert.Contains(t, stderr, tt.msg)
		})
	}
}

func TestTestCommand_JSONOutputFile(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	writeFile(t, filepath.Join(dir, "tests.apitest"), healthTest+"\n"+missingTest)
	report := filepath.Join(t.TempDir(), "report.json")

	code, _, _ := execute(t, "test", "-d", dir, "-o", "json", "--output-file", report)
	assert.Equal(t, ExitTestFailure, code)

	data, err := os.ReadFile(report)
	require.NoError(t, err)

	var out struct {
		Summary struct {
			Total  int `json:"total"`
			Passed int `json:"passed"`
			Failed int `json:"failed"`
		} `json:"summary"`
		Latency struct {
			Requests int `json:"requests"`
		} `json:"latency"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 2, out.Summary.Total)
	assert.Equal(t, 1, out.Summary.Passed)
	assert.Equal(t, 1, out.Summary.Failed)
	assert.Equal(t, 2, out.Latency.Requests)
}

func reportTotal(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out struct {
		Summary struct {
			Total int `json:"total"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	return out.Summary.Total
}

func TestTestRun_RerunCollectsNewFiles(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	writeFile(t, filepath.Join(dir, "health.apitest"), healthTest)
	report := filepath.Join(t.TempDir(), "report.json")

	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })
	directoryFlag = dir
	outputFlag = "json"
	outputFileFlag = report

	fileConfig, err := config.LoadConfig("", dir)
	require.NoError(t, err)
	cfg, err := buildRunnerConfig(testCmd, fileConfig)
	require.NoError(t, err)

	tr := &testRun{cmd: testCmd, cfg: cfg, paths: []string{dir}}
	files, err := collectFiles(tr.paths)
	require.NoError(t, err)
	summary, err := tr.pass(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, summary.exitCode())
	assert.Equal(t, 1, reportTotal(t, report))

	writeFile(t, filepath.Join(dir, "nested", "created.apitest"), strings.Replace(healthTest, `"health"`, `"created"`, 1))
	tr.rerun(context.Background())
	assert.Equal(t, 2, reportTotal(t, report))

	tr.rerun(context.Background())
	assert.Equal(t, 2, reportTotal(t, report))
}

func TestTestCommand_NameFilterAndBail(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	writeFile(t, filepath.Join(dir, "tests.apitest"), missingTest+"\n"+healthTest)

	code, stdout, _ := execute(t, "test", "-d", dir, "--name", "heal*")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "1 passed")

	code, stdout, _ = execute(t, "test", "-d", dir, "--bail")
	assert.Equal(t, ExitTestFailure, code)
	assert.Contains(t, stdout, "- health (bail)")
}

func TestTestCommand_DryRun(t *testing.T) {
	dir := newProject(t, "http://127.0.0.1:1")
	writeFile(t, filepath.Join(dir, "health.apitest"), healthTest)

	code, stdout, _ := execute(t, "test", "-d", dir, "--dry-run", "-v")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "- health (dry run)")
	assert.Contains(t, stdout, "GET http://127.0.0.1:1/health")
}

func TestTestCommand_HistoryRoundTrip(t *testing.T) {
	dir := newProject(t, newServer(t).URL)
	writeFile(t, filepath.Join(dir, "tests.apitest"), healthTest+"\n"+missingTest)

	code, _, _ := execute(t, "test", "-d", dir, "--history", "runs.db")
	require.Equal(t, ExitTestFailure, code)
	require.FileExists(t, filepath.Join(dir, "runs.db"))

	code, stdout, _ := execute(t, "history", "-d", dir, "--db", "runs.db")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "PASSED")
	assert.Contains(t, stdout, "dev")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[1])[0]

	code, stdout, _ = execute(t, "history", id, "-d", dir, "--db", "runs.db")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "✓ health")
	assert.Contains(t, stdout, "✗ missing")
	assert.Contains(t, stdout, "expected status 200, got 404")

	code, stdout, _ = execute(t, "history", "-d", dir, "--db", "runs.db", "--prune", "0")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Removed 1 runs")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.apitest"), healthTest)

	code, stdout, _ := execute(t, "validate", "-d", dir)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Valid: ")

	writeFile(t, filepath.Join(dir, "bad.apitest"), "test \"x\"\nendpoint \"{{baseUrl}}\"\nmethod FETCH\n")
	code, _, stderr := execute(t, "validate", "-d", dir)
	assert.Equal(t, ExitParseError, code)
	assert.Contains(t, stderr, filepath.Join(dir, "bad.apitest")+":3:")
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.apitest"), healthTest+`
test "create"
endpoint "{{baseUrl}}/items"
method POST
`)

	code, stdout, _ := execute(t, "list", "-d", dir)

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "  - health\n    GET {{baseUrl}}/health")
	assert.Contains(t, stdout, "  - create\n    POST {{baseUrl}}/items")
}

func TestListCommand_Functions(t *testing.T) {
	code, stdout, _ := execute(t, "list", "--functions")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "uuid()\n")
	assert.Contains(t, stdout, "randomEmail()\n")
	assert.NotContains(t, stdout, "files found")
}

func TestTokensCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.apitest")
	writeFile(t, path, "test \"a\"\nexpect\n  status 200\n")

	code, stdout, _ := execute(t, "tokens", path)

	require.Equal(t, ExitSuccess, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Equal(t, []string{
		"1:1\tTEST",
		"1:6\tLITERAL(\"a\")",
		"2:1\tEXPECT",
		"3:1\tINDENT",
		"3:3\tSTATUS",
		"3:10\tNUMBER(200)",
	}, lines[:6])
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "\tEOF"))
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	code, stdout, _ := execute(t, "init", "-d", dir, "--name", "shop")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "apitest project initialized!")

	project := filepath.Join(dir, "shop")
	assert.FileExists(t, filepath.Join(project, "apitest.yaml"))

	code, _, _ = execute(t, "validate", "-d", project)
	assert.Equal(t, ExitSuccess, code)

	code, _, stderr := execute(t, "init", "-d", dir, "--name", "shop")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "already exists")

	code, _, _ = execute(t, "init", "-d", dir, "--name", "shop", "--force")
	assert.Equal(t, ExitSuccess, code)
}

func TestImportCurlCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "commands.sh")
	writeFile(t, src, `curl -X POST https://api.example.com/users -H "Content-Type: application/json" -d '{"name":"a"}'`)
	out := filepath.Join(dir, "tests", "users.apitest")

	code, stdout, _ := execute(t, "import", "curl", src, "-o", out, "--status", "201")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Imported 1 tests")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `test "post users"`)
	assert.Contains(t, string(data), "  status 201")

	code, _, _ = execute(t, "validate", out)
	assert.Equal(t, ExitSuccess, code)
}

func TestImportOpenAPICommand(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "openapi.yaml")
	writeFile(t, spec, `openapi: 3.0.3
info:
  title: Items
  version: 1.0.0
paths:
  /items:
    get:
      operationId: listItems
      responses:
        "200":
          description: ok
`)

	code, stdout, _ := execute(t, "import", "openapi", spec, "--base-url", "http://localhost:8080")

	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, `test "listItems"`)
	assert.Contains(t, stdout, `endpoint "http://localhost:8080/items"`)
}

func TestExitCodesAndVersion(t *testing.T) {
	code, stdout, _ := execute(t, "exitcodes")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, " 64  invalid command line usage")

	code, stdout, _ = execute(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "apitest version dev")
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.apitest"), "")
	writeFile(t, filepath.Join(dir, "a.apitest"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")
	writeFile(t, filepath.Join(dir, "sub", "c.apitest"), "")
	writeFile(t, filepath.Join(dir, ".apitest", "hidden.apitest"), "")

	files, err := collectFiles([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.apitest"),
		filepath.Join(dir, "b.apitest"),
		filepath.Join(dir, "sub", "c.apitest"),
	}, files)
}
