package scanner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"NetProbe/internal/model"
)

// ScanHost 并发扫描单个主机的全部端口
// 同时进行的探测不超过 Concurrency，等待所有探测结束后才生成结果
// OpenPorts 按探测完成顺序排列
func (ps *PortScanner) ScanHost(ctx context.Context, ip string, ports []int) model.HostResult {
	if ps.cfg.Verbose {
		ps.logger.Info("正在扫描 %s ...", ip)
	}

	sem := semaphore.NewWeighted(int64(ps.cfg.Concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	openPorts := []model.PortResult{}

	for _, port := range ports {
		if err := sem.Acquire(ctx, 1); err != nil {
			// 调用方已取消，剩余端口不再派发
			break
		}
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			defer sem.Release(1)

			res := ps.ScanPort(ctx, ip, p)
			if res.State != model.StateOpen {
				return
			}

			mu.Lock()
			openPorts = append(openPorts, res)
			mu.Unlock()

			if ps.cfg.Verbose {
				ps.logger.Info("[+] %s:%d 开放 - %s", ip, res.Port, res.Service)
			}
		}(port)
	}
	wg.Wait()

	return model.HostResult{
		IP:        ip,
		OpenPorts: openPorts,
		OS:        GuessOS(openPorts, ps.cfg.Tables),
		ScanTime:  time.Now(),
	}
}
