package scanner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrCIDRUnsupported = errors.New("不支持 CIDR 表示法，请使用范围表示法 (如 192.168.1.1-10)")
	ErrInvalidTarget   = errors.New("无效的目标地址")
)

// ValidateIP 校验点分十进制 IPv4 地址：四段，每段 1-3 位数字且在 0-255 之间
func ValidateIP(ip string) bool {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return false
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// ExpandTarget 将单个目标展开为地址列表
// 支持单个地址、192.168.1.1-10 以及 192.168.1.1-192.168.1.10，范围两端均包含
// 起始大于结束时返回空列表且不视为错误
func ExpandTarget(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)

	if strings.Contains(spec, "/") {
		return nil, fmt.Errorf("%w: %s", ErrCIDRUnsupported, spec)
	}

	if !strings.Contains(spec, "-") {
		if !ValidateIP(spec) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, spec)
		}
		return []string{spec}, nil
	}

	baseIP, endPart, _ := strings.Cut(spec, "-")
	if !ValidateIP(baseIP) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, spec)
	}

	if !isDigits(endPart) {
		endPart = endPart[strings.LastIndex(endPart, ".")+1:]
	}
	end, err := strconv.Atoi(endPart)
	if err != nil {
		return nil, fmt.Errorf("%w: 无效的范围结束值 %s", ErrInvalidTarget, spec)
	}
	if end > 255 {
		end = 255
	}

	octets := strings.Split(baseIP, ".")
	prefix := strings.Join(octets[:3], ".")
	start, _ := strconv.Atoi(octets[3])

	ips := []string{}
	for i := start; i <= end; i++ {
		ip := fmt.Sprintf("%s.%d", prefix, i)
		if ValidateIP(ip) {
			ips = append(ips, ip)
		}
	}
	return ips, nil
}

// ExpandTargets 按顺序展开全部目标，单个目标失败只记录诊断信息
func (ps *PortScanner) ExpandTargets(specs []string) []string {
	var ips []string
	for _, spec := range specs {
		expanded, err := ExpandTarget(spec)
		if err != nil {
			ps.logger.Warn("忽略目标 %q: %v", spec, err)
			continue
		}
		ips = append(ips, expanded...)
	}
	return ips
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
