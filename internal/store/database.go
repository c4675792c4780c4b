package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"NetProbe/internal/model"
	"NetProbe/internal/utils"

	_ "github.com/mattn/go-sqlite3"
)

var ErrScanNotFound = errors.New("扫描记录不存在")

// ScanDatabase 扫描结果快照库
type ScanDatabase struct {
	db     *sql.DB
	logger *utils.Logger
}

// ScanSummary 历史扫描概要
type ScanSummary struct {
	ID        int64
	CreatedAt time.Time
	Targets   string
	Ports     string
	Hosts     int
	OpenPorts int
	Duration  time.Duration
}

func NewScanDatabase(dbPath string) (*ScanDatabase, error) {
	logger := utils.NewLogger("store")

	// 确保目录存在
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	sd := &ScanDatabase{
		db:     db,
		logger: logger,
	}

	if err := sd.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据表失败: %w", err)
	}

	return sd, nil
}

func (sd *ScanDatabase) initTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		targets TEXT NOT NULL,
		ports TEXT NOT NULL,
		timeout_sec INTEGER,
		threads INTEGER,
		duration_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS hosts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		ip TEXT NOT NULL,
		os_guess TEXT,
		scan_time TEXT,
		FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS open_ports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		port INTEGER NOT NULL,
		state TEXT,
		service TEXT,
		banner TEXT,
		FOREIGN KEY (host_id) REFERENCES hosts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_hosts_scan ON hosts(scan_id);
	CREATE INDEX IF NOT EXISTS idx_ports_host ON open_ports(host_id);
	`

	_, err := sd.db.Exec(schema)
	return err
}

// SaveScan 在一个事务中写入整次扫描结果，返回扫描记录 ID
func (sd *ScanDatabase) SaveScan(ctx context.Context, opts model.ScanOptions, result model.ScanResult) (int64, error) {
	tx, err := sd.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO scans (targets, ports, timeout_sec, threads, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		strings.Join(opts.Targets, ","), opts.PortRange, opts.Timeout, opts.Threads,
		result.Duration.Milliseconds(), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("写入扫描记录失败: %w", err)
	}
	scanID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, host := range result.Hosts {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO hosts (scan_id, position, ip, os_guess, scan_time)
			VALUES (?, ?, ?, ?, ?)`,
			scanID, i, host.IP, host.OS, host.ScanTime.Format(time.RFC3339Nano),
		)
		if err != nil {
			return 0, fmt.Errorf("写入主机 %s 失败: %w", host.IP, err)
		}
		hostID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}

		for j, p := range host.OpenPorts {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO open_ports (host_id, position, port, state, service, banner)
				VALUES (?, ?, ?, ?, ?, ?)`,
				hostID, j, p.Port, string(p.State), p.Service, p.Banner,
			)
			if err != nil {
				return 0, fmt.Errorf("写入端口 %s:%d 失败: %w", host.IP, p.Port, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	sd.logger.Debug("扫描结果已保存，记录ID %d，主机 %d 个", scanID, len(result.Hosts))
	return scanID, nil
}

// LoadScan 读取指定扫描的完整结果
func (sd *ScanDatabase) LoadScan(ctx context.Context, scanID int64) (model.ScanResult, error) {
	var result model.ScanResult

	var durationMs int64
	err := sd.db.QueryRowContext(ctx, "SELECT duration_ms FROM scans WHERE id = ?", scanID).Scan(&durationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("%w: %d", ErrScanNotFound, scanID)
	}
	if err != nil {
		return result, err
	}
	result.Duration = time.Duration(durationMs) * time.Millisecond

	rows, err := sd.db.QueryContext(ctx, `
		SELECT id, ip, os_guess, scan_time
		FROM hosts
		WHERE scan_id = ?
		ORDER BY position`, scanID)
	if err != nil {
		return result, err
	}

	var hostIDs []int64
	result.Hosts = []model.HostResult{}
	for rows.Next() {
		var id int64
		var host model.HostResult
		var scanTime string
		if err := rows.Scan(&id, &host.IP, &host.OS, &scanTime); err != nil {
			rows.Close()
			return result, err
		}
		host.ScanTime, err = time.Parse(time.RFC3339Nano, scanTime)
		if err != nil {
			rows.Close()
			return result, fmt.Errorf("解析主机 %s 扫描时间失败: %w", host.IP, err)
		}
		host.OpenPorts = []model.PortResult{}
		hostIDs = append(hostIDs, id)
		result.Hosts = append(result.Hosts, host)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result, err
	}

	for i, id := range hostIDs {
		ports, err := sd.loadPorts(ctx, id)
		if err != nil {
			return result, err
		}
		result.Hosts[i].OpenPorts = ports
	}

	return result, nil
}

func (sd *ScanDatabase) loadPorts(ctx context.Context, hostID int64) ([]model.PortResult, error) {
	rows, err := sd.db.QueryContext(ctx, `
		SELECT port, state, service, banner
		FROM open_ports
		WHERE host_id = ?
		ORDER BY position`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ports := []model.PortResult{}
	for rows.Next() {
		var p model.PortResult
		var state string
		if err := rows.Scan(&p.Port, &state, &p.Service, &p.Banner); err != nil {
			return nil, err
		}
		p.State = model.PortState(state)
		ports = append(ports, p)
	}
	return ports, rows.Err()
}

// ListScans 获取最近的扫描历史
func (sd *ScanDatabase) ListScans(ctx context.Context, limit int) ([]ScanSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := sd.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.targets, s.ports, s.duration_ms,
			(SELECT COUNT(*) FROM hosts h WHERE h.scan_id = s.id),
			(SELECT COUNT(*) FROM open_ports p JOIN hosts h ON p.host_id = h.id WHERE h.scan_id = s.id)
		FROM scans s
		ORDER BY s.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ScanSummary
	for rows.Next() {
		var s ScanSummary
		var durationMs int64
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Targets, &s.Ports, &durationMs, &s.Hosts, &s.OpenPorts); err != nil {
			return nil, fmt.Errorf("读取扫描历史失败: %w", err)
		}
		s.Duration = time.Duration(durationMs) * time.Millisecond
		history = append(history, s)
	}

	return history, rows.Err()
}

func (sd *ScanDatabase) Close() error {
	return sd.db.Close()
}
