package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"NetProbe/internal/model"
	"NetProbe/internal/utils"
)

const envPrefix = "NETPROBE"

// Config 程序配置
type Config struct {
	Scan   model.ScanOptions `mapstructure:"scan"`
	Log    utils.LogConfig   `mapstructure:"log"`
	Tables TablesConfig      `mapstructure:"tables"`
}

// TablesConfig 查找表扩展，在扫描开始前合并到默认表
type TablesConfig struct {
	Ports          []model.PortService `yaml:"ports" mapstructure:"ports"`
	ServiceBanners []model.Signature   `yaml:"service_banners" mapstructure:"service_banners"`
	OSPatterns     []model.Signature   `yaml:"os_patterns" mapstructure:"os_patterns"`
	Files          []string            `yaml:"files" mapstructure:"files"` // 额外的规则文件
}

// Loader 配置加载器
// 优先级: 命令行参数 > 环境变量 > 配置文件 > 默认值
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader 创建配置加载器，v 为 nil 时新建实例
// configPath 为空时在 ./configs 和 . 下查找 config.yaml，找不到则只使用默认值
func NewLoader(configPath string, v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{configPath: configPath, viper: v}
}

// Load 加载并校验配置
func (l *Loader) Load() (*Config, error) {
	v := l.viper
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := l.readConfigFile(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) readConfigFile() error {
	v := l.viper
	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("读取配置文件 %s 失败: %w", l.configPath, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	defaults := model.DefaultScanOptions()
	v.SetDefault("scan.targets", []string{})
	v.SetDefault("scan.ports", defaults.PortRange)
	v.SetDefault("scan.timeout", defaults.Timeout)
	v.SetDefault("scan.threads", defaults.Threads)
	v.SetDefault("scan.rate", 0)
	v.SetDefault("scan.verbose", false)
	v.SetDefault("scan.format", defaults.OutputFormat)
	v.SetDefault("scan.output", "")
	v.SetDefault("scan.db", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

// Validate 校验扫描参数
func (c *Config) Validate() error {
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("超时时间必须大于 0: %d", c.Scan.Timeout)
	}
	if c.Scan.Threads <= 0 {
		return fmt.Errorf("并发数必须大于 0: %d", c.Scan.Threads)
	}
	if c.Scan.Rate < 0 {
		return fmt.Errorf("扫描速率不能为负数: %d", c.Scan.Rate)
	}
	switch strings.ToLower(c.Scan.OutputFormat) {
	case "console", "json", "csv":
	default:
		return fmt.Errorf("不支持的输出格式: %s", c.Scan.OutputFormat)
	}
	return nil
}

// BuildTables 合并默认表、配置中的扩展以及扩展文件，生成冻结的查找表
func (c *Config) BuildTables() (*model.Tables, error) {
	b := model.NewTablesBuilder()
	c.Tables.Apply(b)

	for _, path := range c.Tables.Files {
		ext, err := LoadTablesFile(path)
		if err != nil {
			return nil, err
		}
		ext.Apply(b)
	}
	return b.Build(), nil
}

// Apply 将扩展写入构造器
func (tc TablesConfig) Apply(b *model.TablesBuilder) *model.TablesBuilder {
	for _, p := range tc.Ports {
		b.AddPort(p.Port, p.Name)
	}
	for _, s := range tc.ServiceBanners {
		b.AddServiceBanner(s.Name, s.Patterns...)
	}
	for _, s := range tc.OSPatterns {
		b.AddOSPattern(s.Name, s.Patterns...)
	}
	return b
}

// LoadTablesFile 读取独立的 YAML 规则文件，格式与配置中的 tables 段相同
func LoadTablesFile(path string) (TablesConfig, error) {
	var tc TablesConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return tc, fmt.Errorf("读取规则文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return tc, fmt.Errorf("解析规则文件 %s 失败: %w", path, err)
	}
	if len(tc.Files) > 0 {
		return tc, fmt.Errorf("规则文件 %s 不能再引用其他文件", path)
	}
	return tc, nil
}
