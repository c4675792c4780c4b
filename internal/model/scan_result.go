package model

import "time"

// PortState 端口状态
type PortState string

const (
	StateOpen     PortState = "open"
	StateClosed   PortState = "closed"
	StateFiltered PortState = "filtered" // 超时无响应
	StateError    PortState = "error"
)

// UnknownService 无法识别时的服务标签
const UnknownService = "unknown"

// UnknownOS 无任何操作系统线索时的标签
const UnknownOS = "Unknown"

// PortResult 端口扫描结果
type PortResult struct {
	Port    int       `json:"port"`
	State   PortState `json:"state"`
	Service string    `json:"service"`
	Banner  string    `json:"banner"`
}

// HostResult 单个主机的扫描结果，OpenPorts 只包含开放端口
type HostResult struct {
	IP        string       `json:"ip"`
	OpenPorts []PortResult `json:"open_ports"`
	OS        string       `json:"os"`
	ScanTime  time.Time    `json:"scan_time"`
}

// ScanResult 一次扫描的结果，Hosts 与目标展开顺序一致
type ScanResult struct {
	Hosts    []HostResult  `json:"hosts"`
	Duration time.Duration `json:"-"`
}

// OpenPortCount 所有主机开放端口总数
func (r ScanResult) OpenPortCount() int {
	n := 0
	for _, h := range r.Hosts {
		n += len(h.OpenPorts)
	}
	return n
}

// ScanOptions 扫描选项
type ScanOptions struct {
	Targets      []string `mapstructure:"targets"`
	PortRange    string   `mapstructure:"ports"`
	Timeout      int      `mapstructure:"timeout"` // 秒
	Threads      int      `mapstructure:"threads"`
	Rate         int      `mapstructure:"rate"` // 每秒连接数，0 表示不限
	Verbose      bool     `mapstructure:"verbose"`
	OutputFormat string   `mapstructure:"format"` // console, json, csv
	OutputFile   string   `mapstructure:"output"`
	Database     string   `mapstructure:"db"`
}

// DefaultScanOptions 默认扫描选项
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		PortRange:    "common",
		Timeout:      3,
		Threads:      50,
		OutputFormat: "console",
	}
}
