package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NetProbe/internal/model"
)

func TestScanHostOpenAndClosed(t *testing.T) {
	openPort, closed := startBannerServer(t, "SSH-2.0-OpenSSH_9.6 Debian\r\n")
	shutPort := closedPort(t)

	tables := model.NewTablesBuilder().AddPort(openPort, "Custom").Build()
	ps := newTestScanner(Config{Concurrency: 4, Tables: tables})

	before := time.Now()
	host := ps.ScanHost(context.Background(), "127.0.0.1", []int{shutPort, openPort})

	assert.Equal(t, "127.0.0.1", host.IP)
	require.Len(t, host.OpenPorts, 1)
	assert.Equal(t, openPort, host.OpenPorts[0].Port)
	assert.Equal(t, model.StateOpen, host.OpenPorts[0].State)
	assert.Equal(t, "Custom (SSH)", host.OpenPorts[0].Service)
	assert.Equal(t, "Linux", host.OS)
	assert.False(t, host.ScanTime.Before(before))

	waitClosed(t, closed)
}

func TestScanHostNoOpenPorts(t *testing.T) {
	ps := newTestScanner(Config{})

	host := ps.ScanHost(context.Background(), "127.0.0.1", []int{closedPort(t)})
	assert.NotNil(t, host.OpenPorts)
	assert.Empty(t, host.OpenPorts)
	assert.Equal(t, "Unknown", host.OS)
}

func TestScanHostManyPortsBoundedPool(t *testing.T) {
	openPort, _ := startBannerServer(t, "220 ProFTPD Server ready\r\n")

	ports := make([]int, 0, 20)
	for i := 0; i < 10; i++ {
		ports = append(ports, openPort, closedPort(t))
	}

	ps := newTestScanner(Config{Concurrency: 3})
	host := ps.ScanHost(context.Background(), "127.0.0.1", ports)

	require.Len(t, host.OpenPorts, 10)
	for _, p := range host.OpenPorts {
		assert.Equal(t, openPort, p.Port)
		assert.Equal(t, "FTP", p.Service)
	}
}

func TestScanEndToEnd(t *testing.T) {
	openPort, _ := startBannerServer(t, "SSH-2.0-OpenSSH_9.6\r\n")
	shutPort := closedPort(t)

	ps := newTestScanner(Config{Concurrency: 10})
	spec := fmt.Sprintf("%d,%d", openPort, shutPort)

	result, err := ps.Scan(context.Background(), []string{"127.0.0.1", "10.0.0.0/8"}, spec)
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)

	host := result.Hosts[0]
	assert.Equal(t, "127.0.0.1", host.IP)
	require.Len(t, host.OpenPorts, 1)
	assert.Equal(t, openPort, host.OpenPorts[0].Port)
	assert.Equal(t, "SSH", host.OpenPorts[0].Service)
	assert.Equal(t, 1, result.OpenPortCount())
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestScanHostsInTargetOrder(t *testing.T) {
	shutPort := closedPort(t)
	ps := newTestScanner(Config{})

	result, err := ps.Scan(context.Background(), []string{"127.0.0.3", "127.0.0.1-2"}, fmt.Sprint(shutPort))
	require.NoError(t, err)

	var ips []string
	for _, h := range result.Hosts {
		ips = append(ips, h.IP)
	}
	assert.Equal(t, []string{"127.0.0.3", "127.0.0.1", "127.0.0.2"}, ips)
}

func TestScanAbortsOnBadInput(t *testing.T) {
	ps := newTestScanner(Config{})

	result, err := ps.Scan(context.Background(), []string{"127.0.0.1"}, "80,bad,22")
	assert.ErrorIs(t, err, ErrNoPorts)
	assert.ErrorIs(t, err, ErrInvalidPortSpec)
	assert.Empty(t, result.Hosts)

	result, err = ps.Scan(context.Background(), []string{"127.0.0.1"}, "70000")
	assert.ErrorIs(t, err, ErrNoPorts)
	assert.Empty(t, result.Hosts)

	result, err = ps.Scan(context.Background(), []string{"10.0.0.0/8", "nope"}, "80")
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.Empty(t, result.Hosts)
}

func TestScanCanceledBeforeStart(t *testing.T) {
	ps := newTestScanner(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := ps.Scan(ctx, []string{"127.0.0.1-3"}, "common")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Hosts)
}

func TestScanCanceledKeepsCompletedHosts(t *testing.T) {
	port, _ := startBannerServer(t, "")

	ps := newTestScanner(Config{})
	ps.bannerTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 第一个主机约 1 秒完成，取消发生在第二个主机读取 banner 期间
	time.AfterFunc(1500*time.Millisecond, cancel)

	targets := []string{"127.0.0.1", "127.0.0.1", "127.0.0.1"}
	result, err := ps.Scan(ctx, targets, fmt.Sprint(port))

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, result.Hosts, 1)
	assert.Equal(t, "127.0.0.1", result.Hosts[0].IP)
	require.Len(t, result.Hosts[0].OpenPorts, 1)
	assert.Equal(t, port, result.Hosts[0].OpenPorts[0].Port)
}
