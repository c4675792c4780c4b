package scanner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"NetProbe/internal/model"
)

var ErrInvalidPortSpec = errors.New("无效的端口范围")

// ResolvePorts 解析端口范围
// "common" 返回常见端口表；否则按逗号拆分，每项为单个端口或 start-end
// 任意一项无法解析则整体无效；超出 1-65535 的端口直接丢弃
func ResolvePorts(spec string, tables *model.Tables) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if strings.EqualFold(spec, "common") {
		return tables.CommonPortsList(), nil
	}

	var ports []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if startStr, endStr, isRange := strings.Cut(part, "-"); isRange {
			start, err := strconv.Atoi(strings.TrimSpace(startStr))
			if err != nil {
				return nil, fmt.Errorf("%w: 无效的起始端口 %q", ErrInvalidPortSpec, part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(endStr))
			if err != nil {
				return nil, fmt.Errorf("%w: 无效的结束端口 %q", ErrInvalidPortSpec, part)
			}
			for port := max(start, 0); port <= min(end, 65536); port++ {
				ports = append(ports, port)
			}
			continue
		}

		port, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: 无效的端口号 %q", ErrInvalidPortSpec, part)
		}
		ports = append(ports, port)
	}

	valid := make([]int, 0, len(ports))
	for _, port := range ports {
		if port >= 1 && port <= 65535 {
			valid = append(valid, port)
		}
	}
	return valid, nil
}

// ResolvePorts 使用扫描器自身的查找表解析端口，失败时记录诊断信息
func (ps *PortScanner) ResolvePorts(spec string) ([]int, error) {
	ports, err := ResolvePorts(spec, ps.cfg.Tables)
	if err != nil {
		ps.logger.Error("解析端口范围失败: %v", err)
		return nil, err
	}
	return ports, nil
}
