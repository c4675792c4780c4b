package scanner

import (
	"fmt"

	"NetProbe/internal/model"
)

// IdentifyService 根据端口和 banner 识别服务
// 已知端口返回端口表中的名称，banner 命中规则时附加 "(规则服务名)"
// 未知端口仅依赖 banner，均无法判断时返回 "unknown"
func IdentifyService(port int, banner string, tables *model.Tables) string {
	if name, ok := tables.ServiceName(port); ok {
		if matched, ok := tables.MatchService(banner); ok {
			return fmt.Sprintf("%s (%s)", name, matched)
		}
		return name
	}

	if matched, ok := tables.MatchService(banner); ok {
		return matched
	}
	return model.UnknownService
}

// GuessOS 根据开放端口及其 banner 粗略推测操作系统
// 每条线索记一票，得票最多者胜出，平票时取最先出现的标签
func GuessOS(openPorts []model.PortResult, tables *model.Tables) string {
	var hints []string
	present := make(map[int]bool, len(openPorts))

	for _, p := range openPorts {
		hints = append(hints, tables.MatchOS(p.Banner)...)
		present[p.Port] = true
	}

	if present[3389] {
		hints = append(hints, "Windows")
	}
	if present[22] && present[80] {
		hints = append(hints, "Linux")
	}
	if present[23] {
		hints = append(hints, "Network Device")
	}

	return mostCommon(hints)
}

func mostCommon(hints []string) string {
	if len(hints) == 0 {
		return model.UnknownOS
	}

	counts := make(map[string]int)
	var order []string
	for _, h := range hints {
		if counts[h] == 0 {
			order = append(order, h)
		}
		counts[h]++
	}

	best := order[0]
	for _, h := range order[1:] {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best
}
