package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/go-agent-client/devserver"
	"github.com/jrsteele09/go-agent-client/internal/config"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t    *testing.T
	srv  *devserver.Server
	args []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := devserver.New(config.New())
	_, err := srv.AddUser("ada@example.com", "Secret123", "Ada")
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &cli{
		t:   t,
		srv: srv,
		args: []string{
			"--base-url", ts.URL + devserver.RouteAPIPrefix,
			"--storage", "file",
			"--data-dir", t.TempDir(),
			"--wait", "2s",
		},
	}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append(append([]string{}, c.args...), args...), &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err)
	return out
}

func TestCLI_SessionSurvivesBetweenInvocations(t *testing.T) {
	c := newCLI(t)

	require.Contains(t, c.mustRun("login", "--email", "ada@example.com", "--password", "Secret123"), "signed in as ada@example.com")

	out := c.mustRun("agents", "create", "--name", "Scout", "--model", "small")
	fields := strings.Fields(out)
	require.Len(t, fields, 4)
	id := fields[2]

	require.Contains(t, c.mustRun("agents", "list"), "Scout")
	require.Contains(t, c.mustRun("agents", "get", id), "model:        small")
	require.Contains(t, c.mustRun("storage", "info"), "auth_token")

	require.Contains(t, c.mustRun("logout"), "signed out")
	_, err := c.run("agents", "list")
	require.Error(t, err)
}

func TestCLI_OfflineWritesReplayOnDrain(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "--email", "ada@example.com", "--password", "Secret123")
	id := strings.Fields(c.mustRun("agents", "create", "--name", "Scout"))[2]

	out := c.mustRun("--offline", "sources", "add-text", id, "--title", "notes", "--content", "remember this")
	require.Contains(t, out, "queued")
	require.Contains(t, c.mustRun("--offline", "queue", "status"), "1 queued (0 high, 1 medium, 0 low), offline")
	require.Contains(t, c.mustRun("--offline", "queue", "list"), "POST")
	require.Zero(t, c.srv.Hits(http.MethodPost, "/sources/text"))

	require.Contains(t, c.mustRun("queue", "drain", "--timeout", "5s"), "0 queued")
	require.Equal(t, 1, c.srv.Hits(http.MethodPost, "/sources/text"))
	require.Contains(t, c.mustRun("sources", "list", id), "notes")
}

func TestCLI_QueueClear(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "--email", "ada@example.com", "--password", "Secret123")

	c.mustRun("--offline", "agents", "delete", "missing")
	require.Contains(t, c.mustRun("--offline", "queue", "status"), "1 queued (1 high, 0 medium, 0 low)")
	require.Contains(t, c.mustRun("--offline", "queue", "clear"), "queue cleared")
	require.Contains(t, c.mustRun("--offline", "queue", "status"), "0 queued")
}

func TestCLI_Usage(t *testing.T) {
	c := newCLI(t)

	_, err := c.run()
	require.ErrorIs(t, err, errUsage)

	_, err = c.run("bogus")
	require.ErrorContains(t, err, `unknown command "bogus"`)

	_, err = c.run("--offline", "queue", "drain")
	require.Error(t, err)
}
