package cli

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// setupEnv points configuration at temp directories and returns the home
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	require.NoError(t, os.Mkdir(home, 0o755))

	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("FBRS_HOME", home)
	t.Setenv("FBRS_IP", "127.0.0.1")
	t.Setenv("FBRS_PORT", strconv.Itoa(freePort(t)))
	t.Setenv("FBRS_ADAPTER", "disk")
	t.Setenv("FBRS_STORE_PATH", filepath.Join(dir, "store", "identity.yaml"))
	t.Setenv("FBRS_AUTH_REQUIRED", "false")
	t.Setenv("LOG_LEVEL", "error")
	return home
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := run()
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Commands:")

	code, stdout, _ := run("help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "serve")

	code, _, stderr = run("bogus")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown command: "bogus"`)
}

func TestRun_BadFlag(t *testing.T) {
	setupEnv(t)

	code, _, _ := run("status", "-nope")
	assert.Equal(t, exitUsage, code)

	code, _, stderr := run("status", "-port", "70000")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "invalid port")
}

func TestStatus_NotRunning(t *testing.T) {
	setupEnv(t)

	code, stdout, _ := run("status")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "service not running")
}

func TestStop_NotRunning(t *testing.T) {
	setupEnv(t)

	code, stdout, _ := run("stop")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "service stopped")
}

func TestUsersAndGroups(t *testing.T) {
	setupEnv(t)

	code, stdout, stderr := run("users", "-create", "alice", "-group", "admin")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, `user "alice" created`)

	code, stdout, _ = run("users")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"username": "alice"`)

	code, stdout, _ = run("groups")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"name": "admin"`)
	assert.Contains(t, stdout, `"name": "public"`)

	code, stdout, _ = run("groups", "-group", "admin")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"username": "alice"`)

	code, _, stderr = run("groups", "-create", "ops")
	require.Equal(t, exitOK, code, stderr)

	code, _, stderr = run("groups", "-add", "alice", "-group", "ops")
	require.Equal(t, exitOK, code, stderr)

	code, _, stderr = run("groups", "-add-leader", "alice", "-group", "ops")
	require.Equal(t, exitOK, code, stderr)

	code, stdout, _ = run("users", "-username", "alice")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"ops"`)

	code, _, _ = run("groups", "-add", "alice")
	assert.Equal(t, exitUsage, code)

	code, _, _ = run("groups", "-create", "x", "-delete", "y")
	assert.Equal(t, exitUsage, code)

	code, _, stderr = run("users", "-create", "alice")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "already exists")

	code, _, stderr = run("users", "-delete", "alice")
	require.Equal(t, exitOK, code, stderr)

	code, _, stderr = run("users", "-username", "alice")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "not found")
}

func TestTokens(t *testing.T) {
	setupEnv(t)

	code, _, stderr := run("users", "-create", "bob")
	require.Equal(t, exitOK, code, stderr)

	code, stdout, stderr := run("tokens", "-username", "bob", "-create")
	require.Equal(t, exitOK, code, stderr)
	token := strings.TrimSpace(stdout)
	assert.Len(t, token, 36)

	code, stdout, _ = run("tokens", "-username", "bob", "-check", token)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "token valid")

	code, _, _ = run("tokens", "-username", "bob", "-check", "wrong")
	assert.Equal(t, exitError, code)

	code, stdout, _ = run("tokens", "-username", "bob")
	require.Equal(t, exitOK, code)
	assert.NotContains(t, stdout, token)
	assert.Contains(t, stdout, `"owner"`)

	code, _, stderr = run("tokens", "-username", "bob", "-delete", token)
	require.Equal(t, exitOK, code, stderr)

	code, _, _ = run("tokens", "-username", "bob", "-check", token)
	assert.Equal(t, exitError, code)

	code, _, _ = run("tokens", "-create")
	assert.Equal(t, exitUsage, code)
}

func TestServeQueryStop(t *testing.T) {
	home := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "notes.txt"), []byte("hi"), 0o644))

	done := make(chan int, 1)
	go func() {
		code, _, _ := run("serve")
		done <- code
	}()

	require.Eventually(t, func() bool {
		_, stdout, _ := run("status")
		return strings.Contains(stdout, "service running")
	}, 5*time.Second, 50*time.Millisecond)

	code, stdout, stderr := run("query", "-ignore-cur-dir", "-ignore-up-dir")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, `"filename": "notes.txt"`)
	assert.NotContains(t, stdout, `"filename": ".."`)

	code, stdout, _ = run("query", "-path", filepath.Join(home, "notes.txt"))
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"content": "hi"`)

	code, _, stderr = run("query", "-path", filepath.Join(home, "missing"))
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "404")

	code, stdout, _ = run("stop")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "service stopped")

	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestStart_AddressInUse(t *testing.T) {
	setupEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	t.Setenv("FBRS_PORT", strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))

	code, stdout, stderr := run("start")
	assert.Equal(t, exitError, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "address already in use")
	assert.Equal(t, 1, strings.Count(stderr, "error:"), stderr)
}

func TestStartStop(t *testing.T) {
	setupEnv(t)

	type result struct {
		code           int
		stdout, stderr string
	}
	done := make(chan result, 1)
	go func() {
		code, stdout, stderr := run("start")
		done <- result{code, stdout, stderr}
	}()

	require.Eventually(t, func() bool {
		_, stdout, _ := run("status")
		return strings.Contains(stdout, "service running")
	}, 5*time.Second, 50*time.Millisecond)

	code, _, _ := run("stop")
	require.Equal(t, exitOK, code)

	select {
	case res := <-done:
		assert.Equal(t, exitOK, res.code, res.stderr)
		// a stop that lands before the readiness ping succeeds stays silent
		if res.stdout != "" {
			assert.Contains(t, res.stdout, "service started on 127.0.0.1:")
		}
		assert.Empty(t, res.stderr)
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return")
	}
}

func TestQueryOptions(t *testing.T) {
	opts := queryOptions("/srv", true, false, true, true)
	assert.Equal(t, "/srv", opts.Path)
	assert.True(t, opts.IgnoreDotFiles)
	assert.True(t, opts.IgnoreCurDir)
	assert.Nil(t, opts.StatEach)

	opts = queryOptions("", false, false, false, false)
	assert.False(t, opts.ShouldStatEach())
}
