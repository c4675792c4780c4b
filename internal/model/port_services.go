package model

import "strings"

// PortService 端口与服务名称的对应关系
type PortService struct {
	Port int    `yaml:"port" mapstructure:"port"`
	Name string `yaml:"name" mapstructure:"name"`
}

// Signature 按子串匹配的识别规则，Name 为命中后的标签
type Signature struct {
	Name     string   `yaml:"name" mapstructure:"name"`
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`
}

// defaultPorts 常见端口表，顺序即 "common" 端口集的扫描顺序
var defaultPorts = []PortService{
	{21, "FTP"},
	{22, "SSH"},
	{23, "Telnet"},
	{25, "SMTP"},
	{53, "DNS"},
	{80, "HTTP"},
	{110, "POP3"},
	{143, "IMAP"},
	{443, "HTTPS"},
	{993, "IMAPS"},
	{995, "POP3S"},
	{3389, "RDP"},
	{5432, "PostgreSQL"},
	{3306, "MySQL"},
	{1433, "MSSQL"},
	{6379, "Redis"},
	{27017, "MongoDB"},
	{8080, "HTTP-Proxy"},
	{8443, "HTTPS-Alt"},
}

// defaultServiceBanners banner 服务识别规则，按顺序匹配，首个命中生效
var defaultServiceBanners = []Signature{
	{"SSH", []string{"SSH-", "OpenSSH"}},
	{"HTTP", []string{"HTTP/", "Server:", "Apache", "nginx", "IIS"}},
	{"FTP", []string{"220", "FTP"}},
	{"SMTP", []string{"220", "SMTP", "ESMTP"}},
	{"POP3", []string{"+OK", "POP3"}},
	{"IMAP", []string{"* OK", "IMAP"}},
}

// defaultOSPatterns banner 操作系统线索
var defaultOSPatterns = []Signature{
	{"Linux", []string{"Linux", "Ubuntu", "CentOS", "Debian", "RedHat"}},
	{"Windows", []string{"Windows", "Microsoft", "IIS"}},
	{"Unix", []string{"Unix", "BSD", "Solaris"}},
	{"Network Device", []string{"Cisco", "Juniper", "Router", "Switch"}},
}

// Tables 扫描期间只读的查找表
// 只能通过 TablesBuilder 构造，构造完成后不再修改，可在多个 goroutine 间共享
type Tables struct {
	ports      []PortService
	portIndex  map[int]string
	services   []Signature
	osPatterns []Signature
}

// DefaultTables 返回内置的默认查找表
func DefaultTables() *Tables {
	return NewTablesBuilder().Build()
}

// ServiceName 查询端口表
func (t *Tables) ServiceName(port int) (string, bool) {
	name, ok := t.portIndex[port]
	return name, ok
}

// CommonPortsList 按表定义顺序返回常见端口
func (t *Tables) CommonPortsList() []int {
	ports := make([]int, 0, len(t.ports))
	for _, p := range t.ports {
		ports = append(ports, p.Port)
	}
	return ports
}

// MatchService 返回第一个命中 banner 的服务名（不区分大小写）
func (t *Tables) MatchService(banner string) (string, bool) {
	if banner == "" {
		return "", false
	}
	lower := strings.ToLower(banner)
	for _, sig := range t.services {
		if sig.matches(lower) {
			return sig.Name, true
		}
	}
	return "", false
}

// MatchOS 返回 banner 命中的所有操作系统标签
// 每命中一个规则串记一次，同一系统可出现多次
func (t *Tables) MatchOS(banner string) []string {
	if banner == "" {
		return nil
	}
	lower := strings.ToLower(banner)
	var hits []string
	for _, sig := range t.osPatterns {
		for _, pattern := range sig.Patterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				hits = append(hits, sig.Name)
			}
		}
	}
	return hits
}

func (s Signature) matches(lowerBanner string) bool {
	for _, pattern := range s.Patterns {
		if strings.Contains(lowerBanner, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// TablesBuilder 在扫描开始前扩展查找表
type TablesBuilder struct {
	ports      []PortService
	services   []Signature
	osPatterns []Signature
}

// NewTablesBuilder 以默认表为基础创建构造器
func NewTablesBuilder() *TablesBuilder {
	return &TablesBuilder{
		ports:      append([]PortService(nil), defaultPorts...),
		services:   cloneSignatures(defaultServiceBanners),
		osPatterns: cloneSignatures(defaultOSPatterns),
	}
}

// AddPort 新增或覆盖端口服务名，新端口追加在表尾
func (b *TablesBuilder) AddPort(port int, name string) *TablesBuilder {
	if port < 1 || port > 65535 || name == "" {
		return b
	}
	for i := range b.ports {
		if b.ports[i].Port == port {
			b.ports[i].Name = name
			return b
		}
	}
	b.ports = append(b.ports, PortService{Port: port, Name: name})
	return b
}

// AddServiceBanner 为服务追加 banner 规则，未知服务追加在表尾
func (b *TablesBuilder) AddServiceBanner(name string, patterns ...string) *TablesBuilder {
	b.services = mergeSignature(b.services, name, patterns)
	return b
}

// AddOSPattern 为操作系统追加 banner 规则
func (b *TablesBuilder) AddOSPattern(name string, patterns ...string) *TablesBuilder {
	b.osPatterns = mergeSignature(b.osPatterns, name, patterns)
	return b
}

// Build 生成冻结的查找表，之后对构造器的修改不会影响已生成的表
func (b *TablesBuilder) Build() *Tables {
	t := &Tables{
		ports:      append([]PortService(nil), b.ports...),
		portIndex:  make(map[int]string, len(b.ports)),
		services:   cloneSignatures(b.services),
		osPatterns: cloneSignatures(b.osPatterns),
	}
	for _, p := range t.ports {
		t.portIndex[p.Port] = p.Name
	}
	return t
}

func mergeSignature(sigs []Signature, name string, patterns []string) []Signature {
	var kept []string
	for _, p := range patterns {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if name == "" || len(kept) == 0 {
		return sigs
	}
	for i := range sigs {
		if sigs[i].Name == name {
			sigs[i].Patterns = append(sigs[i].Patterns, kept...)
			return sigs
		}
	}
	return append(sigs, Signature{Name: name, Patterns: kept})
}

func cloneSignatures(src []Signature) []Signature {
	out := make([]Signature, len(src))
	for i, s := range src {
		out[i] = Signature{Name: s.Name, Patterns: append([]string(nil), s.Patterns...)}
	}
	return out
}
