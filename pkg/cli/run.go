package cli

import (
	"context"
	"errors"
	"io"

	"NetProbe/internal/config"
	"NetProbe/internal/scanner"
	"NetProbe/internal/store"
	"NetProbe/internal/utils"
)

// Run 执行一次扫描并输出结果
// 扫描被中断时仍输出和保存已完成的主机
func Run(ctx context.Context, cfg *config.Config, w io.Writer) error {
	if err := utils.InitLogger(cfg.Log); err != nil {
		return err
	}
	logger := utils.NewLogger("main")

	tables, err := cfg.BuildTables()
	if err != nil {
		return err
	}

	logger.Info("启动 %s 扫描器", appName)
	ps := scanner.NewPortScanner(scanner.ConfigFromOptions(cfg.Scan, tables))

	result, err := ps.Scan(ctx, cfg.Scan.Targets, cfg.Scan.PortRange)
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}
	if interrupted {
		logger.Warn("扫描被用户中断，已完成 %d 个主机", len(result.Hosts))
		// 后续的输出和保存不应再被取消
		ctx = context.WithoutCancel(ctx)
	}

	if err := NewOutputFormatter(cfg.Scan.OutputFormat).PrintResult(result, w); err != nil {
		return err
	}

	if cfg.Scan.OutputFile != "" {
		if err := SaveResults(cfg.Scan.OutputFile, result); err != nil {
			return err
		}
		logger.Info("结果已保存到 %s", cfg.Scan.OutputFile)
	}

	if cfg.Scan.Database != "" {
		db, err := store.NewScanDatabase(cfg.Scan.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.SaveScan(ctx, cfg.Scan, result)
		if err != nil {
			return err
		}
		logger.Info("扫描记录已写入 %s (ID %d)", cfg.Scan.Database, id)
	}

	return nil
}
