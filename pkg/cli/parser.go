package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"NetProbe/internal/config"
	"NetProbe/internal/model"
	"NetProbe/internal/store"
)

const appName = "NetProbe"

// Parser 命令行解析，参数绑定到 viper 后由 config.Loader 统一合并
type Parser struct {
	v          *viper.Viper
	configPath string
}

func NewParser() *Parser {
	return &Parser{v: viper.New()}
}

// Load 合并命令行、环境变量、配置文件和默认值
func (p *Parser) Load() (*config.Config, error) {
	return config.NewLoader(p.configPath, p.v).Load()
}

// Command 构建根命令及子命令
func (p *Parser) Command() *cobra.Command {
	defaults := model.DefaultScanOptions()

	root := &cobra.Command{
		Use:   appName,
		Short: "TCP 端口扫描与服务识别工具",
		Long: `NetProbe 对一组 IPv4 目标做 TCP connect 扫描，抓取服务 banner，
识别服务并根据开放端口粗略推测操作系统。

示例:
  NetProbe -t 192.168.1.1 -p 1-1000
  NetProbe -t 192.168.1.1-20 -t 10.0.0.5 -p common --format json
  NetProbe -t 192.168.1.10 -p 22,80,443 -o result.json --db scans.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := p.Load()
			if err != nil {
				return err
			}
			if len(cfg.Scan.Targets) == 0 {
				return fmt.Errorf("必须指定目标地址 (-t)")
			}
			return Run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	pflags := root.PersistentFlags()
	pflags.StringVar(&p.configPath, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	pflags.String("log-level", "", "日志级别 (debug, info, warn, error)")
	pflags.String("db", "", "SQLite 扫描记录库路径")

	flags := root.Flags()
	flags.StringSliceP("target", "t", nil, "扫描目标 (单个 IP 或 a.b.c.x-y 范围，可重复或逗号分隔)")
	flags.StringP("ports", "p", defaults.PortRange, "端口范围 (如: 1-1000,80,443 或 common)")
	flags.Int("timeout", defaults.Timeout, "连接超时时间(秒)")
	flags.Int("threads", defaults.Threads, "单个主机的并发连接数")
	flags.Int("rate", 0, "每秒最多发起的连接数 (0 表示不限)")
	flags.BoolP("verbose", "v", false, "实时显示发现的开放端口")
	flags.String("format", defaults.OutputFormat, "输出格式 (console, json, csv)")
	flags.StringP("output", "o", "", "将 JSON 结果保存到文件")

	p.bind(map[string]string{
		"scan.targets": "target",
		"scan.ports":   "ports",
		"scan.timeout": "timeout",
		"scan.threads": "threads",
		"scan.rate":    "rate",
		"scan.verbose": "verbose",
		"scan.format":  "format",
		"scan.output":  "output",
		"scan.db":      "db",
		"log.level":    "log-level",
	}, root)

	root.AddCommand(p.historyCommand(), p.showCommand())
	return root
}

func (p *Parser) bind(keys map[string]string, cmd *cobra.Command) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("参数 %s 未定义，无法绑定到 %s", name, key))
		}
		if err := p.v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("绑定参数 %s 失败: %v", name, err))
		}
	}
}

// historyCommand 列出记录库中最近的扫描
func (p *Parser) historyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看扫描历史",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := p.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			history, err := db.ListScans(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(cmd, history)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "显示条数")
	return cmd
}

// showCommand 按记录 ID 重新输出一次历史扫描
func (p *Parser) showCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "查看指定扫描记录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("无效的记录 ID: %s", args[0])
			}

			db, err := p.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := db.LoadScan(cmd.Context(), id)
			if err != nil {
				return err
			}
			return NewOutputFormatter(format).PrintResult(result, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "console", "输出格式 (console, json, csv)")
	return cmd
}

func (p *Parser) openStore() (*store.ScanDatabase, error) {
	cfg, err := p.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Scan.Database == "" {
		return nil, fmt.Errorf("未指定扫描记录库 (--db)")
	}
	return store.NewScanDatabase(cfg.Scan.Database)
}

func printHistory(cmd *cobra.Command, history []store.ScanSummary) error {
	out := cmd.OutOrStdout()
	if len(history) == 0 {
		_, err := fmt.Fprintln(out, "暂无扫描记录")
		return err
	}

	tableData := pterm.TableData{{"ID", "时间", "目标", "端口", "主机数", "开放端口", "耗时"}}
	for _, s := range history {
		tableData = append(tableData, []string{
			strconv.FormatInt(s.ID, 10),
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			s.Targets,
			s.Ports,
			strconv.Itoa(s.Hosts),
			strconv.Itoa(s.OpenPorts),
			fmt.Sprintf("%.2fs", s.Duration.Seconds()),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader(true).WithData(tableData).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, table)
	return err
}

// Execute 程序入口，SIGINT/SIGTERM 取消正在进行的扫描
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewParser().Command().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
