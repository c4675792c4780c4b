package scanner

import (
	"context"
	"errors"
	"time"

	"NetProbe/internal/model"
)

var (
	ErrNoPorts   = errors.New("没有可扫描的有效端口")
	ErrNoTargets = errors.New("没有可扫描的有效目标")
)

// Scan 执行一次完整扫描
// 端口只解析一次；主机逐个扫描，主机内部端口并发
// ctx 被取消时停止扫描，正在扫描的主机被丢弃，返回已完成的主机结果和 ctx.Err()
func (ps *PortScanner) Scan(ctx context.Context, targets []string, portSpec string) (model.ScanResult, error) {
	ports, err := ps.ResolvePorts(portSpec)
	if err != nil {
		return model.ScanResult{}, errors.Join(ErrNoPorts, err)
	}
	if len(ports) == 0 {
		ps.logger.Error("没有可扫描的有效端口: %q", portSpec)
		return model.ScanResult{}, ErrNoPorts
	}

	ips := ps.ExpandTargets(targets)
	if len(ips) == 0 {
		ps.logger.Error("没有可扫描的有效目标")
		return model.ScanResult{}, ErrNoTargets
	}

	ps.logger.Info("开始扫描 %d 个主机的 %d 个端口", len(ips), len(ports))
	ps.logger.Info("超时: %v | 并发: %d | 端口: %s", ps.cfg.Timeout, ps.cfg.Concurrency, portSpec)

	result := model.ScanResult{Hosts: make([]model.HostResult, 0, len(ips))}
	start := time.Now()

	for _, ip := range ips {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		host := ps.ScanHost(ctx, ip, ports)
		if err := ctx.Err(); err != nil {
			// 被中断的主机结果不完整，不计入
			result.Duration = time.Since(start)
			return result, err
		}
		result.Hosts = append(result.Hosts, host)
	}

	result.Duration = time.Since(start)
	ps.logger.Info("扫描完成，耗时 %.2f 秒", result.Duration.Seconds())
	return result, nil
}
