package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"NetProbe/internal/model"
)

// 控制台输出中 banner 的最大显示长度
const consoleBannerWidth = 50

type OutputFormatter struct {
	format string
}

func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{format: format}
}

// PrintResult 按格式把结果写入 w
func (of *OutputFormatter) PrintResult(result model.ScanResult, w io.Writer) error {
	var (
		output string
		err    error
	)

	switch strings.ToLower(of.format) {
	case "json":
		output, err = of.formatJSON(result)
	case "csv":
		output, err = of.formatCSV(result)
	default:
		output, err = of.formatConsole(result)
	}
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, output)
	return err
}

// formatConsole 每个主机一个区块，开放端口以表格列出
func (of *OutputFormatter) formatConsole(result model.ScanResult) (string, error) {
	var builder strings.Builder

	builder.WriteString(pterm.DefaultSection.Sprint("扫描结果"))

	for _, host := range result.Hosts {
		builder.WriteString(fmt.Sprintf("\n主机: %s\n", pterm.Bold.Sprint(host.IP)))
		builder.WriteString(fmt.Sprintf("操作系统: %s\n", host.OS))
		builder.WriteString(fmt.Sprintf("开放端口: %d\n", len(host.OpenPorts)))

		if len(host.OpenPorts) == 0 {
			builder.WriteString("未发现开放端口\n")
			continue
		}

		tableData := pterm.TableData{{"端口", "服务", "Banner"}}
		for _, p := range host.OpenPorts {
			tableData = append(tableData, []string{
				fmt.Sprintf("%d/tcp", p.Port),
				p.Service,
				shortBanner(p.Banner),
			})
		}

		table, err := pterm.DefaultTable.
			WithHasHeader(true).
			WithBoxed(false).
			WithData(tableData).
			Srender()
		if err != nil {
			return "", fmt.Errorf("渲染表格失败: %w", err)
		}
		builder.WriteString(table)
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("\n共 %d 个主机，%d 个开放端口，耗时 %.2f 秒\n",
		len(result.Hosts), result.OpenPortCount(), result.Duration.Seconds()))

	return builder.String(), nil
}

func shortBanner(banner string) string {
	if banner == "" {
		return "-"
	}
	runes := []rune(banner)
	if len(runes) > consoleBannerWidth {
		return string(runes[:consoleBannerWidth]) + "..."
	}
	return banner
}

// formatJSON 输出主机结果数组
func (of *OutputFormatter) formatJSON(result model.ScanResult) (string, error) {
	data, err := marshalHosts(result)
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func marshalHosts(result model.ScanResult) ([]byte, error) {
	hosts := result.Hosts
	if hosts == nil {
		hosts = []model.HostResult{}
	}
	data, err := json.MarshalIndent(hosts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化结果失败: %w", err)
	}
	return data, nil
}

// formatCSV 每个开放端口一行
func (of *OutputFormatter) formatCSV(result model.ScanResult) (string, error) {
	var builder strings.Builder
	writer := csv.NewWriter(&builder)

	rows := [][]string{{"ip", "os", "port", "state", "service", "banner"}}
	for _, host := range result.Hosts {
		for _, p := range host.OpenPorts {
			rows = append(rows, []string{
				host.IP,
				host.OS,
				strconv.Itoa(p.Port),
				string(p.State),
				p.Service,
				p.Banner,
			})
		}
	}

	if err := writer.WriteAll(rows); err != nil {
		return "", fmt.Errorf("写入 CSV 失败: %w", err)
	}
	return builder.String(), nil
}
