package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"NetProbe/internal/model"
	"NetProbe/internal/utils"
)

const (
	DefaultTimeout     = 3 * time.Second
	DefaultConcurrency = 50

	// BannerTimeout banner 读取超时，与连接超时无关
	BannerTimeout  = 2 * time.Second
	bannerReadSize = 1024
	maxBannerChars = 200
)

// httpPorts 连接后需要先发送 HTTP 请求才会有响应的端口
var httpPorts = map[int]bool{80: true, 443: true, 8080: true, 8443: true}

const httpProbe = "GET / HTTP/1.0\r\n\r\n"

// Config 扫描器配置，构造后不可修改
type Config struct {
	Timeout     time.Duration // 连接超时
	Concurrency int           // 单个主机的并发探测数
	Rate        int           // 每秒最多发起的连接数，0 表示不限
	Verbose     bool
	Tables      *model.Tables
}

// ConfigFromOptions 由扫描选项生成扫描器配置
func ConfigFromOptions(opts model.ScanOptions, tables *model.Tables) Config {
	return Config{
		Timeout:     time.Duration(opts.Timeout) * time.Second,
		Concurrency: opts.Threads,
		Rate:        opts.Rate,
		Verbose:     opts.Verbose,
		Tables:      tables,
	}
}

// PortScanner TCP connect 扫描器
// 构造后只读，同一实例可被多个扫描并发使用
type PortScanner struct {
	cfg           Config
	bannerTimeout time.Duration
	limiter       *rate.Limiter
	logger        *utils.Logger
}

func NewPortScanner(cfg Config) *PortScanner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Tables == nil {
		cfg.Tables = model.DefaultTables()
	}

	ps := &PortScanner{
		cfg:           cfg,
		bannerTimeout: BannerTimeout,
		logger:        utils.NewLogger("scanner"),
	}
	if cfg.Rate > 0 {
		ps.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Rate)
	}
	return ps
}

// ScanPort 扫描单个端口
// 无论结果如何，返回前连接一定已关闭
func (ps *PortScanner) ScanPort(ctx context.Context, ip string, port int) (result model.PortResult) {
	result = model.PortResult{
		Port:    port,
		State:   model.StateClosed,
		Service: model.UnknownService,
	}
	address := net.JoinHostPort(ip, fmt.Sprintf("%d", port))

	defer func() {
		if r := recover(); r != nil {
			result = model.PortResult{Port: port, State: model.StateError, Service: model.UnknownService}
			if ps.cfg.Verbose {
				ps.logger.Error("扫描 %s 时发生异常: %v", address, r)
			}
		}
	}()

	if ps.limiter != nil {
		if err := ps.limiter.Wait(ctx); err != nil {
			result.State = model.StateError
			ps.verboseError(address, err)
			return result
		}
	}

	dialer := &net.Dialer{Timeout: ps.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		result.State = classifyDialError(err)
		if result.State == model.StateError {
			ps.verboseError(address, err)
		} else if ps.cfg.Verbose {
			ps.logger.Info("端口 %d 连接失败 (%s): %v", port, result.State, err)
		}
		return result
	}
	defer conn.Close()

	result.State = model.StateOpen
	result.Banner = ps.grabBanner(conn, port)
	result.Service = IdentifyService(port, result.Banner, ps.cfg.Tables)

	if ps.cfg.Verbose && result.Banner != "" {
		ps.logger.Info("端口 %d banner: %s", port, result.Banner)
	}
	return result
}

func (ps *PortScanner) verboseError(address string, err error) {
	if ps.cfg.Verbose {
		ps.logger.Error("扫描 %s 出错: %v", address, err)
	}
}

// classifyDialError 根据连接错误判断端口状态
// 超时为 filtered；资源耗尽、地址错误或调用方取消为 error；其余拒绝类错误为 closed
func classifyDialError(err error) model.PortState {
	if errors.Is(err, context.Canceled) {
		return model.StateError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.StateFiltered
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.StateFiltered
	}

	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.ENOBUFS) {
		return model.StateError
	}

	var addrErr *net.AddrError
	var dnsErr *net.DNSError
	if errors.As(err, &addrErr) || errors.As(err, &dnsErr) {
		return model.StateError
	}

	return model.StateClosed
}

// grabBanner 获取端口 banner，任何失败都返回空字符串
func (ps *PortScanner) grabBanner(conn net.Conn, port int) string {
	if err := conn.SetDeadline(time.Now().Add(ps.bannerTimeout)); err != nil {
		return ""
	}

	if httpPorts[port] {
		if _, err := conn.Write([]byte(httpProbe)); err != nil {
			return ""
		}
	}

	buffer := make([]byte, bannerReadSize)
	n, err := conn.Read(buffer)
	if n == 0 && err != nil {
		if ps.cfg.Verbose && !isTimeout(err) {
			ps.logger.Info("端口 %d 读取失败: %v", port, err)
		}
		return ""
	}

	return cleanBanner(buffer[:n])
}

// cleanBanner 丢弃非法 UTF-8 字节，去除首尾空白并截断到 200 个字符
func cleanBanner(raw []byte) string {
	banner := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	if utf8.RuneCountInString(banner) > maxBannerChars {
		banner = string([]rune(banner)[:maxBannerChars])
	}
	return banner
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
