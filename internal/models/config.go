package models

import (
	"fmt"
	"strings"
	"time"
)

// 选择器名称
const (
	SelectorUsername     = "uname_input_xpath"
	SelectorPassword     = "pword_input_xpath"
	SelectorSubmit       = "submit_xpath"
	SelectorSearch       = "search_xpath"
	SelectorSearchSubmit = "search_submit_xpath"
	SelectorLink         = "link_xpath"
	SelectorNext         = "next_xpath"
	SelectorMainContent  = "main_content_xpath"
)

// 默认值
const (
	DefaultWaitMin       = 3
	DefaultWaitMax       = 5
	DefaultMaxNumOfPages = 1000
	DefaultMainContent   = `//*[@id="main"]`
)

// CrawlConfig 单个站点的爬取配置
type CrawlConfig struct {
	LoginURL       string            `mapstructure:"login_url" json:"login_url,omitempty"`
	MainURL        string            `mapstructure:"main_url" json:"main_url,omitempty"`
	Keyword        string            `mapstructure:"keyword" json:"keyword,omitempty"`
	Auth           string            `mapstructure:"auth" json:"auth,omitempty"` // "user:pass"
	XPath          map[string]string `mapstructure:"xpath" json:"xpath"`
	WaitBetween    []int             `mapstructure:"wait_between" json:"wait_between"`
	MaxNumOfPages  int               `mapstructure:"max_num_of_pages" json:"max_num_of_pages"`
	Headless       bool              `mapstructure:"headless" json:"headless"`
	UserAgent      string            `mapstructure:"user_agent" json:"user_agent,omitempty"`
	DisableImages  bool              `mapstructure:"disable_images" json:"disable_images"`
	Proxy          string            `mapstructure:"proxy" json:"proxy,omitempty"`
	BrowserTimeout int               `mapstructure:"browser_timeout" json:"browser_timeout,omitempty"` // 秒
	Outfile        string            `mapstructure:"outfile" json:"outfile,omitempty"`
	FileHeaders    []string          `mapstructure:"file_headers" json:"file_headers,omitempty"`
}

// ApplyDefaults 填充未设置的可选字段
func (c *CrawlConfig) ApplyDefaults() {
	if len(c.WaitBetween) == 0 {
		c.WaitBetween = []int{DefaultWaitMin, DefaultWaitMax}
	}
	if c.MaxNumOfPages == 0 {
		c.MaxNumOfPages = DefaultMaxNumOfPages
	}
	if len(c.FileHeaders) == 0 {
		c.FileHeaders = append([]string(nil), DefaultFieldOrder...)
	}
	if c.XPath == nil {
		c.XPath = make(map[string]string)
	}
}

// Validate 校验配置,失败时返回 *ConfigurationError
// 在获取浏览器会话之前调用
func (c *CrawlConfig) Validate() error {
	if c.LoginURL == "" && c.MainURL == "" {
		return &ConfigurationError{Field: "main_url", Reason: "login_url 与 main_url 至少需要配置一个"}
	}
	for field, raw := range map[string]string{"login_url": c.LoginURL, "main_url": c.MainURL} {
		if raw == "" {
			continue
		}
		if err := ValidateURL(raw); err != nil {
			return &ConfigurationError{Field: field, Reason: "URL无效", Cause: err}
		}
	}

	required := []string{SelectorLink, SelectorNext}
	if c.LoginURL != "" {
		required = append(required, SelectorUsername, SelectorPassword, SelectorSubmit)
		if _, _, ok := c.Credentials(); !ok {
			return &ConfigurationError{Field: "auth", Reason: "配置了 login_url 时 auth 必须为 \"user:pass\" 格式"}
		}
	} else {
		required = append(required, SelectorSearchSubmit)
		if c.Keyword != "" {
			required = append(required, SelectorSearch)
		}
	}

	for _, field := range c.FieldOrder() {
		if !IsKnownField(field) {
			return &ConfigurationError{Field: "file_headers", Reason: fmt.Sprintf("未知字段 %q", field)}
		}
		if key := FieldSelectorKey(field); key != "" {
			required = append(required, key)
		}
	}

	for _, key := range required {
		if strings.TrimSpace(c.XPath[key]) == "" {
			return &ConfigurationError{Field: "xpath." + key, Reason: "缺少必需的选择器"}
		}
	}

	if len(c.WaitBetween) != 2 {
		return &ConfigurationError{Field: "wait_between", Reason: "必须为 [min, max] 两个整数"}
	}
	if c.WaitBetween[0] < 0 || c.WaitBetween[0] > c.WaitBetween[1] {
		return &ConfigurationError{
			Field:  "wait_between",
			Reason: fmt.Sprintf("范围无效 [%d, %d]", c.WaitBetween[0], c.WaitBetween[1]),
		}
	}
	if c.MaxNumOfPages < 1 {
		return &ConfigurationError{Field: "max_num_of_pages", Reason: "必须大于0"}
	}
	if c.BrowserTimeout < 0 {
		return &ConfigurationError{Field: "browser_timeout", Reason: "不能为负数"}
	}
	return nil
}

// Credentials 按第一个冒号拆分 auth
func (c *CrawlConfig) Credentials() (user, pass string, ok bool) {
	user, pass, ok = strings.Cut(c.Auth, ":")
	if !ok || user == "" {
		return "", "", false
	}
	return user, pass, true
}

// FieldOrder 记录字段顺序
func (c *CrawlConfig) FieldOrder() []string {
	if len(c.FileHeaders) == 0 {
		return DefaultFieldOrder
	}
	return c.FileHeaders
}

// Selector 返回命名选择器
func (c *CrawlConfig) Selector(name string) (string, bool) {
	s, ok := c.XPath[name]
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// MainContentSelector 搜索后等待的主内容标记
func (c *CrawlConfig) MainContentSelector() string {
	if s, ok := c.Selector(SelectorMainContent); ok {
		return s
	}
	return DefaultMainContent
}

// WaitBounds 返回等待区间(秒)
func (c *CrawlConfig) WaitBounds() (int, int) {
	if len(c.WaitBetween) != 2 {
		return DefaultWaitMin, DefaultWaitMax
	}
	return c.WaitBetween[0], c.WaitBetween[1]
}

// Timeout 页面加载/脚本超时,未配置时为0
func (c *CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.BrowserTimeout) * time.Second
}

// Redacted 返回隐藏凭据的副本,用于日志和报告
func (c CrawlConfig) Redacted() CrawlConfig {
	if user, _, ok := c.Credentials(); ok {
		c.Auth = user + ":***"
	} else if c.Auth != "" {
		c.Auth = "***"
	}
	return c
}
