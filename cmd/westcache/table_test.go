package main

import (
	"bytes"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestTableCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("WESTCACHE_REDIS_ADDR", mr.Addr())
	t.Setenv("WESTCACHE_REDIS_PREFIX", "clitest")
	t.Setenv("WESTCACHE_LOG_LEVEL", "error")

	out, err := runCLI(t, "table", "add", "getCities", "--match", "prefix", "--type", "direct", "--value", `{"JiangSu":"XXX"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "added getCities")
	assert.True(t, mr.Exists("clitest:flushers"))

	_, err = runCLI(t, "table", "add", "getUser")
	require.NoError(t, err)

	_, err = runCLI(t, "table", "bump", "getUser")
	require.NoError(t, err)
	_, err = runCLI(t, "table", "set-direct", "getCities", `{"JiangSu":"AAA"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"JiangSu":"AAA"}`, mr.HGet("clitest:directs", "getCities"))

	out, err = runCLI(t, "table", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "getCities")
	assert.Contains(t, out, "prefix")
	assert.Contains(t, out, "fingerprint")
	assert.Regexp(t, `getUser\s+full\s+2`, out)

	_, err = runCLI(t, "table", "remove", "getUser")
	require.NoError(t, err)
	_, err = runCLI(t, "table", "remove", "getUser")
	assert.Error(t, err)

	_, err = runCLI(t, "table", "add", "bad", "--match", "fuzzy")
	assert.ErrorContains(t, err, "invalid key match")

	_, err = runCLI(t, "table", "migrate")
	assert.ErrorContains(t, err, "mysql")
}

func TestTableCommands_UnknownSource(t *testing.T) {
	t.Setenv("WESTCACHE_FLUSHER_SOURCE", "carrier-pigeon")
	_, err := runCLI(t, "table", "list")
	assert.ErrorContains(t, err, "unknown flusher source")
}
