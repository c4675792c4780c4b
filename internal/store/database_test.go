package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NetProbe/internal/model"
)

func newTestDB(t *testing.T) *ScanDatabase {
	t.Helper()
	db, err := NewScanDatabase(filepath.Join(t.TempDir(), "data", "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleResult() model.ScanResult {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)
	return model.ScanResult{
		Duration: 1500 * time.Millisecond,
		Hosts: []model.HostResult{
			{
				IP: "192.168.1.10",
				OpenPorts: []model.PortResult{
					{Port: 80, State: model.StateOpen, Service: "HTTP (HTTP)", Banner: "HTTP/1.1 200 OK"},
					{Port: 22, State: model.StateOpen, Service: "SSH (SSH)", Banner: "SSH-2.0-OpenSSH_8.9"},
				},
				OS:       "Linux",
				ScanTime: ts,
			},
			{
				IP:        "192.168.1.11",
				OpenPorts: []model.PortResult{},
				OS:        "Unknown",
				ScanTime:  ts.Add(time.Second),
			},
		},
	}
}

func TestSaveAndLoadScan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	opts := model.DefaultScanOptions()
	opts.Targets = []string{"192.168.1.10-11"}

	id, err := db.SaveScan(ctx, opts, sampleResult())
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	loaded, err := db.LoadScan(ctx, id)
	require.NoError(t, err)

	want := sampleResult()
	require.Len(t, loaded.Hosts, 2)
	assert.Equal(t, want.Duration, loaded.Duration)
	for i := range want.Hosts {
		assert.Equal(t, want.Hosts[i].IP, loaded.Hosts[i].IP)
		assert.Equal(t, want.Hosts[i].OS, loaded.Hosts[i].OS)
		assert.Equal(t, want.Hosts[i].OpenPorts, loaded.Hosts[i].OpenPorts)
		assert.True(t, want.Hosts[i].ScanTime.Equal(loaded.Hosts[i].ScanTime))
	}
}

func TestLoadScanNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.LoadScan(context.Background(), 42)
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestListScans(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	opts := model.DefaultScanOptions()
	opts.Targets = []string{"192.168.1.10", "192.168.1.11"}

	first, err := db.SaveScan(ctx, opts, sampleResult())
	require.NoError(t, err)
	second, err := db.SaveScan(ctx, opts, model.ScanResult{})
	require.NoError(t, err)

	history, err := db.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, 0, history[0].Hosts)
	assert.Equal(t, first, history[1].ID)
	assert.Equal(t, 2, history[1].Hosts)
	assert.Equal(t, 2, history[1].OpenPorts)
	assert.Equal(t, "192.168.1.10,192.168.1.11", history[1].Targets)
	assert.Equal(t, "common", history[1].Ports)
	assert.Equal(t, 1500*time.Millisecond, history[1].Duration)
}

func TestSaveScanCanceledContext(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.SaveScan(ctx, model.DefaultScanOptions(), sampleResult())
	assert.Error(t, err)

	history, err := db.ListScans(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLoadScanBadScanTime(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.SaveScan(ctx, model.DefaultScanOptions(), sampleResult())
	require.NoError(t, err)

	_, err = db.db.ExecContext(ctx, "UPDATE hosts SET scan_time = 'yesterday' WHERE scan_id = ?", id)
	require.NoError(t, err)

	_, err = db.LoadScan(ctx, id)
	assert.Error(t, err)
}

func TestListScansBadRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.SaveScan(ctx, model.DefaultScanOptions(), sampleResult())
	require.NoError(t, err)
	_, err = db.db.ExecContext(ctx, "INSERT INTO scans (targets, ports, duration_ms) VALUES ('10.0.0.1', '80', NULL)")
	require.NoError(t, err)

	history, err := db.ListScans(ctx, 10)
	assert.Error(t, err)
	assert.Nil(t, history)
}
