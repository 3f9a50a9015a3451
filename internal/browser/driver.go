package browser

import (
	"context"
	"strings"
	"time"
)

// PrefProxyAuthToken 代理认证令牌所在的首选项键
const PrefProxyAuthToken = "proxy.auth.token"

// Element 页面元素
type Element interface {
	Text() (string, error)
	Attribute(name string) (string, error)
	Input(text string) error
	Click() error
}

// Driver 浏览器自动化能力
// 导航超时返回 *models.NavigationTimeoutError,元素缺失返回 *models.ElementNotFoundError
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	FindElement(ctx context.Context, xpath string) (Element, error)
	FindElements(ctx context.Context, xpath string) ([]Element, error)
	WaitElement(ctx context.Context, xpath string, timeout time.Duration) (Element, error)
	// WindowHandles 第一个句柄总是当前工作页
	WindowHandles(ctx context.Context) ([]string, error)
	CloseWindow(ctx context.Context, handle string) error
	SetTimeouts(pageLoad, script time.Duration)
	Quit() error
}

// Launcher 创建浏览器会话
type Launcher interface {
	// Remote 连接远程执行端: ws(s):// 为 DevTools 地址,http(s):// 为 rod 管理服务
	Remote(ctx context.Context, executor string, profile Profile) (Driver, error)
	// Local 启动本地浏览器,display 非空时在该虚拟显示中以有界面模式运行
	Local(ctx context.Context, profile Profile, display string) (Driver, error)
}

// Profile 浏览器配置
type Profile struct {
	Bin           string
	Headless      bool
	UserAgent     string
	DisableImages bool
	Stealth       bool
	Preferences   map[string]any
	Extensions    []string
	Arguments     map[string]string // 额外启动参数(能力覆盖)

	ProxyServer string // scheme://host:port
	ProxyHost   string
	RemoteDNS   bool // SOCKS 隧道远程解析域名
}

// NewProfile 创建空配置
func NewProfile() Profile {
	return Profile{
		Preferences: make(map[string]any),
		Arguments:   make(map[string]string),
	}
}

// SetPreference 设置首选项,键用点号分隔层级
func (p *Profile) SetPreference(key string, value any) {
	if p.Preferences == nil {
		p.Preferences = make(map[string]any)
	}
	p.Preferences[key] = value
}

// AuthToken 代理认证令牌
func (p Profile) AuthToken() string {
	s, _ := p.Preferences[PrefProxyAuthToken].(string)
	return s
}

// nestPreferences 将 "a.b.c" 形式的键展开为嵌套对象
func nestPreferences(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range flat {
		parts := strings.Split(key, ".")
		cur := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[part] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = value
	}
	return out
}
