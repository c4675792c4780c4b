package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NetProbe/internal/config"
	"NetProbe/internal/model"
	"NetProbe/internal/store"
)

// startServer 在回环地址上启动一个发送 banner 的服务
func startServer(t *testing.T, banner string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte(banner))
			_ = conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewParser().Command()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestScanCommandJSON(t *testing.T) {
	chdir(t, t.TempDir())
	port := startServer(t, "SSH-2.0-OpenSSH_9.6\r\n")

	out, err := execute(t, context.Background(),
		"-t", "127.0.0.1", "-p", fmt.Sprint(port), "--timeout", "1", "--format", "json")
	require.NoError(t, err)

	var hosts []model.HostResult
	require.NoError(t, json.Unmarshal([]byte(out), &hosts))
	require.Len(t, hosts, 1)
	require.Len(t, hosts[0].OpenPorts, 1)
	assert.Equal(t, port, hosts[0].OpenPorts[0].Port)
	assert.Equal(t, "SSH", hosts[0].OpenPorts[0].Service)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", hosts[0].OpenPorts[0].Banner)
}

func TestScanCommandRequiresTarget(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := execute(t, context.Background(), "-p", "80")
	assert.Error(t, err)
}

func TestScanCommandRejectsBadFormat(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := execute(t, context.Background(), "-t", "127.0.0.1", "--format", "xml")
	assert.Error(t, err)
}

func TestScanSavesFileAndHistory(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	port := startServer(t, "+OK Dovecot ready.\r\n")

	outFile := filepath.Join(dir, "result.json")
	dbFile := filepath.Join(dir, "scans.db")

	_, err := execute(t, context.Background(),
		"-t", "127.0.0.1", "-p", fmt.Sprint(port), "--timeout", "1",
		"--format", "csv", "-o", outFile, "--db", dbFile)
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var hosts []model.HostResult
	require.NoError(t, json.Unmarshal(data, &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "POP3", hosts[0].OpenPorts[0].Service)

	pterm.DisableColor()
	t.Cleanup(pterm.EnableColor)

	out, err := execute(t, context.Background(), "history", "--db", dbFile)
	require.NoError(t, err)
	assert.Contains(t, out, "127.0.0.1")

	out, err = execute(t, context.Background(), "show", "1", "--db", dbFile, "--format", "json")
	require.NoError(t, err)
	var shown []model.HostResult
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.Len(t, shown, 1)
	assert.Equal(t, hosts[0].OpenPorts, shown[0].OpenPorts)

	_, err = execute(t, context.Background(), "show", "99", "--db", dbFile)
	assert.ErrorIs(t, err, store.ErrScanNotFound)
}

func TestHistoryRequiresDatabase(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := execute(t, context.Background(), "history")
	assert.Error(t, err)
}

func TestRunCanceledStillPrintsAndSaves(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.Config{Scan: model.DefaultScanOptions()}
	cfg.Scan.Targets = []string{"127.0.0.1"}
	cfg.Scan.OutputFormat = "json"
	cfg.Scan.Database = filepath.Join(dir, "scans.db")
	cfg.Log.Output = "stderr"

	var out bytes.Buffer
	require.NoError(t, Run(ctx, cfg, &out))
	assert.Equal(t, "[]\n", out.String())

	db, err := store.NewScanDatabase(cfg.Scan.Database)
	require.NoError(t, err)
	defer db.Close()

	history, err := db.ListScans(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].Hosts)
}

func TestBindUnknownFlagPanics(t *testing.T) {
	p := NewParser()
	cmd := p.Command()

	assert.Panics(t, func() {
		p.bind(map[string]string{"scan.ports": "port"}, cmd)
	})
	assert.NotPanics(t, func() {
		p.bind(map[string]string{"scan.db": "db"}, cmd)
	})
}

// chdir switches the working directory for the test and restores it on cleanup
// (stand-in for testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
