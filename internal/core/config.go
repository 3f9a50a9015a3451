package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/proxy"
	"github.com/RecoveryAshes/PageCrawl/internal/session"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// Config 应用程序配置
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Browser BrowserConfig `mapstructure:"browser"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Output  OutputConfig  `mapstructure:"output"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	NoColor  bool           `mapstructure:"no_color"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// BrowserConfig 浏览器会话配置
type BrowserConfig struct {
	Grid          GridConfig        `mapstructure:"grid"`
	Display       DisplayConfig     `mapstructure:"display"`
	ScriptTimeout time.Duration     `mapstructure:"script_timeout"`
	Preferences   map[string]any    `mapstructure:"preferences"`
	Extensions    []string          `mapstructure:"extensions"`
	Arguments     map[string]string `mapstructure:"arguments"`
	Stealth       bool              `mapstructure:"stealth"`
	Bin           string            `mapstructure:"bin"`
	MinFreeMemory int               `mapstructure:"min_free_memory"` // MB
}

// GridConfig 远程执行端
type GridConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Executor      string `mapstructure:"executor"`
	LocalFallback bool   `mapstructure:"local_fallback"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

// DisplayConfig 虚拟显示
type DisplayConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Width   int  `mapstructure:"width"`
	Height  int  `mapstructure:"height"`
}

// ProxyConfig 代理来源与凭据
type ProxyConfig struct {
	Sources      map[string][]string      `mapstructure:"sources"`
	SourceURLs   []SourceURL              `mapstructure:"source_urls"`
	Credentials  *models.ProxyCredentials `mapstructure:"credentials"`
	Override     string                   `mapstructure:"override"` // provider|host:port
	Probe        bool                     `mapstructure:"probe"`
	ProbeTimeout time.Duration            `mapstructure:"probe_timeout"`
	ProbeTarget  string                   `mapstructure:"probe_target"`
	FetchTimeout time.Duration            `mapstructure:"fetch_timeout"`
}

// SourceURL 远程代理列表
type SourceURL struct {
	Provider string `mapstructure:"provider"`
	URL      string `mapstructure:"url"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	ReportDir string `mapstructure:"report_dir"`
}

// CrawlConfig 爬取流程参数
type CrawlConfig struct {
	ActionPause time.Duration `mapstructure:"action_pause"`
	SearchWait  time.Duration `mapstructure:"search_wait"`
}

// LoadConfig 加载配置文件,文件不存在时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pagecrawl"))
		}
	}

	setDefaults(v)
	v.SetEnvPrefix("PAGECRAWL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		utils.Debugf("应用配置 %s: %v", used, utils.RedactMap(v.AllSettings()))
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("browser.grid.enabled", false)
	v.SetDefault("browser.grid.executor", "http://127.0.0.1:7317")
	v.SetDefault("browser.grid.local_fallback", true)
	v.SetDefault("browser.grid.max_retries", session.DefaultGridRetries)
	v.SetDefault("browser.display.enabled", true)
	v.SetDefault("browser.display.width", session.DefaultDisplayWidth)
	v.SetDefault("browser.display.height", session.DefaultDisplayHeight)
	v.SetDefault("browser.script_timeout", session.DefaultScriptTimeout)
	v.SetDefault("browser.stealth", false)
	v.SetDefault("browser.min_free_memory", 512)

	v.SetDefault("proxy.probe", false)
	v.SetDefault("proxy.probe_timeout", 5*time.Second)
	v.SetDefault("proxy.probe_target", proxy.DefaultProbeTarget)
	v.SetDefault("proxy.fetch_timeout", 15*time.Second)

	v.SetDefault("output.report_dir", "reports")

	v.SetDefault("crawl.action_pause", 2*time.Second)
	v.SetDefault("crawl.search_wait", 10*time.Second)
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
		NoColor:    c.Logging.NoColor,
	}
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先
func (c *Config) MergeCLIFlags(logLevel string, verbose bool) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if verbose {
		c.Logging.Level = "debug"
	}
}

// ProxyOverride 解析固定代理端点,未配置时返回 nil
// 格式为 host:port 或 provider|host:port,省略 provider 时沿用站点配置的代理标签
func (c *Config) ProxyOverride() (*models.ProxyEndpoint, error) {
	if c.Proxy.Override == "" {
		return nil, nil
	}
	provider, hostport, ok := strings.Cut(c.Proxy.Override, "|")
	if !ok {
		provider, hostport = "", c.Proxy.Override
	}
	ep, err := models.ParseProxyEndpoint(provider, hostport)
	if err != nil {
		return nil, &models.ConfigurationError{Field: "proxy.override", Reason: "代理地址无效", Cause: err}
	}
	return &ep, nil
}

// SessionOptions 会话提供者选项
func (c *Config) SessionOptions() (session.Options, error) {
	override, err := c.ProxyOverride()
	if err != nil {
		return session.Options{}, err
	}
	opts := session.Options{
		GridEnabled:   c.Browser.Grid.Enabled,
		Executor:      c.Browser.Grid.Executor,
		LocalFallback: c.Browser.Grid.LocalFallback,
		GridRetries:   c.Browser.Grid.MaxRetries,
		UseDisplay:    c.Browser.Display.Enabled,
		DisplayWidth:  c.Browser.Display.Width,
		DisplayHeight: c.Browser.Display.Height,
		ScriptTimeout: c.Browser.ScriptTimeout,
		Preferences:   c.Browser.Preferences,
		Extensions:    c.Browser.Extensions,
		Arguments:     c.Browser.Arguments,
		Stealth:       c.Browser.Stealth,
		Bin:           c.Browser.Bin,
		Credentials:   c.Proxy.Credentials,
		ProxyOverride: override,

		MinFreeMemoryMB: c.Browser.MinFreeMemory,
	}
	if c.Proxy.Probe {
		opts.Probe = proxy.NewProbe(c.Proxy.ProbeTimeout, c.Proxy.ProbeTarget)
	}
	return opts, nil
}

// ProxySources 配置中的全部代理来源
func (c *Config) ProxySources(userAgent string) []proxy.Source {
	sources := make([]proxy.Source, 0, 1+len(c.Proxy.SourceURLs))
	if len(c.Proxy.Sources) > 0 {
		sources = append(sources, proxy.StaticSource(c.Proxy.Sources))
	}
	for _, su := range c.Proxy.SourceURLs {
		sources = append(sources, &proxy.ListSource{
			Provider:  su.Provider,
			URL:       su.URL,
			Timeout:   c.Proxy.FetchTimeout,
			UserAgent: userAgent,
		})
	}
	return sources
}
