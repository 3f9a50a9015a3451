package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/proxy"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodLauncher 基于 go-rod 的 Launcher
type RodLauncher struct{}

// NewRodLauncher 创建 rod 启动器
func NewRodLauncher() *RodLauncher {
	return &RodLauncher{}
}

// LookupBrowser 查找本地浏览器,bin 非空时只检查该路径
func LookupBrowser(bin string) (string, bool) {
	if bin != "" {
		_, err := os.Stat(bin)
		return bin, err == nil
	}
	return launcher.LookPath()
}

// Remote 连接远程浏览器
func (r *RodLauncher) Remote(ctx context.Context, executor string, profile Profile) (Driver, error) {
	var b *rod.Browser

	if strings.HasPrefix(executor, "ws://") || strings.HasPrefix(executor, "wss://") {
		// 直连 DevTools 时启动参数由远端决定
		utils.Debugf("直连远程DevTools: %s", executor)
		b = rod.New().Context(ctx).ControlURL(executor)
	} else {
		l, err := launcher.NewManaged(executor)
		if err != nil {
			return nil, fmt.Errorf("连接远程管理服务失败: %w", err)
		}
		l = applyProfile(l.Context(ctx), profile).Headless(profile.Headless)
		client, err := l.Client()
		if err != nil {
			return nil, fmt.Errorf("远程启动浏览器失败: %w", err)
		}
		b = rod.New().Context(ctx).Client(client)
	}

	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("连接远程浏览器失败: %w", err)
	}

	d, err := newRodDriver(b, nil, profile)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return d, nil
}

// Local 启动本地浏览器
func (r *RodLauncher) Local(ctx context.Context, profile Profile, display string) (Driver, error) {
	l := launcher.New().Context(ctx)
	if profile.Bin != "" {
		l = l.Bin(profile.Bin)
	}
	l = l.Headless(profile.Headless && display == "")
	if display != "" {
		l = l.Env(append(os.Environ(), "DISPLAY="+display)...)
	}
	l = applyProfile(l, profile)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	b := rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已启动: %s", controlURL)

	d, err := newRodDriver(b, l, profile)
	if err != nil {
		_ = b.Close()
		l.Kill()
		l.Cleanup()
		return nil, err
	}
	return d, nil
}

// applyProfile 将配置转换为启动参数
func applyProfile(l *launcher.Launcher, p Profile) *launcher.Launcher {
	l = l.Set("ignore-certificate-errors")

	if p.UserAgent != "" {
		l = l.Set("user-agent", p.UserAgent)
	}
	if p.DisableImages {
		l = l.Set("blink-settings", "imagesEnabled=false")
	}
	if p.ProxyServer != "" {
		l = l.Proxy(p.ProxyServer)
		// SOCKS 隧道: 禁止本地解析,域名交给代理端
		if p.RemoteDNS && p.ProxyHost != "" {
			l = l.Set("host-resolver-rules", "MAP * ~NOTFOUND , EXCLUDE "+p.ProxyHost)
		}
	}
	if len(p.Extensions) > 0 {
		l = l.Delete("disable-extensions").Set("load-extension", strings.Join(p.Extensions, ","))
	}
	for name, value := range p.Arguments {
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}
	if len(p.Preferences) > 0 {
		data, err := json.Marshal(nestPreferences(p.Preferences))
		if err != nil {
			utils.Warnf("浏览器首选项序列化失败: %v", err)
		} else {
			l = l.Preferences(string(data))
		}
	}
	return l
}

// rodDriver rod 实现的 Driver
type rodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher // 仅本地启动时非空

	pageTimeout   time.Duration
	scriptTimeout time.Duration
}

func newRodDriver(b *rod.Browser, l *launcher.Launcher, profile Profile) (*rodDriver, error) {
	if token := profile.AuthToken(); token != "" {
		auth, err := newProxyAuth(b, token)
		if err != nil {
			return nil, err
		}
		if err := auth.enable(); err != nil {
			return nil, err
		}
		go b.EachEvent(auth.onRequestPaused, auth.onAuthRequired)()
	}

	var (
		page *rod.Page
		err  error
	)
	if profile.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}

	return &rodDriver{browser: b, page: page, launcher: l}, nil
}

// proxyAuth 在浏览器生命周期内响应代理认证
// 开启 Fetch 后所有请求都会暂停,必须逐个放行
type proxyAuth struct {
	client     proto.Client
	user, pass string
}

func newProxyAuth(client proto.Client, token string) (*proxyAuth, error) {
	user, pass, err := proxy.DecodeCredentials(token)
	if err != nil {
		return nil, fmt.Errorf("代理认证令牌无效: %w", err)
	}
	return &proxyAuth{client: client, user: user, pass: pass}, nil
}

func (a *proxyAuth) enable() error {
	if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(a.client); err != nil {
		return fmt.Errorf("启用代理认证失败: %w", err)
	}
	return nil
}

func (a *proxyAuth) onRequestPaused(e *proto.FetchRequestPaused) {
	if err := (proto.FetchContinueRequest{RequestID: e.RequestID}).Call(a.client); err != nil {
		utils.Debugf("放行请求失败 %s: %v", e.RequestID, err)
	}
}

func (a *proxyAuth) onAuthRequired(e *proto.FetchAuthRequired) {
	err := proto.FetchContinueWithAuth{
		RequestID: e.RequestID,
		AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
			Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
			Username: a.user,
			Password: a.pass,
		},
	}.Call(a.client)
	if err != nil {
		utils.Debugf("代理认证应答失败 %s: %v", e.RequestID, err)
	}
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if d.pageTimeout > 0 {
		p = p.Timeout(d.pageTimeout)
		defer p.CancelTimeout()
	}

	err := p.Navigate(url)
	if err == nil {
		err = p.WaitLoad()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &models.NavigationTimeoutError{URL: url, Timeout: d.pageTimeout, Cause: err}
		}
		return fmt.Errorf("导航失败 %s: %w", url, err)
	}
	return nil
}

func (d *rodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("获取当前URL失败: %w", err)
	}
	return info.URL, nil
}

func (d *rodDriver) FindElement(ctx context.Context, xpath string) (Element, error) {
	el, err := d.page.Context(ctx).Sleeper(rod.NotFoundSleeper).ElementX(xpath)
	if err != nil {
		var nf *rod.ElementNotFoundError
		if errors.As(err, &nf) {
			return nil, &models.ElementNotFoundError{Selector: xpath}
		}
		return nil, fmt.Errorf("查找元素失败 %s: %w", xpath, err)
	}
	return d.wrap(el), nil
}

func (d *rodDriver) FindElements(ctx context.Context, xpath string) ([]Element, error) {
	els, err := d.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return nil, fmt.Errorf("查找元素失败 %s: %w", xpath, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, d.wrap(el))
	}
	return out, nil
}

func (d *rodDriver) WaitElement(ctx context.Context, xpath string, timeout time.Duration) (Element, error) {
	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	el, err := p.ElementX(xpath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("等待元素超时 (%s): %w", timeout, &models.ElementNotFoundError{Selector: xpath})
		}
		return nil, fmt.Errorf("等待元素失败 %s: %w", xpath, err)
	}
	return d.wrap(el.Context(ctx)), nil
}

func (d *rodDriver) WindowHandles(ctx context.Context) ([]string, error) {
	pages, err := d.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("获取窗口列表失败: %w", err)
	}
	handles := []string{string(d.page.TargetID)}
	for _, p := range pages {
		if p.TargetID != d.page.TargetID {
			handles = append(handles, string(p.TargetID))
		}
	}
	return handles, nil
}

func (d *rodDriver) CloseWindow(ctx context.Context, handle string) error {
	if handle == string(d.page.TargetID) {
		return fmt.Errorf("不能关闭当前工作页")
	}
	p, err := d.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(handle))
	if err != nil {
		return fmt.Errorf("查找窗口失败 %s: %w", handle, err)
	}
	return p.Close()
}

func (d *rodDriver) SetTimeouts(pageLoad, script time.Duration) {
	d.pageTimeout = pageLoad
	d.scriptTimeout = script
}

func (d *rodDriver) Quit() error {
	err := d.browser.Close()
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
	if err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	return nil
}

func (d *rodDriver) wrap(el *rod.Element) Element {
	return &rodElement{el: el, timeout: d.scriptTimeout}
}

// rodElement rod 实现的 Element,每个操作受脚本超时约束
type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) scoped() (*rod.Element, func()) {
	if e.timeout <= 0 {
		return e.el, func() {}
	}
	el := e.el.Timeout(e.timeout)
	return el, func() { el.CancelTimeout() }
}

func (e *rodElement) Text() (string, error) {
	el, done := e.scoped()
	defer done()
	return el.Text()
}

func (e *rodElement) Attribute(name string) (string, error) {
	el, done := e.scoped()
	defer done()

	// href 取解析后的绝对地址
	if name == "href" {
		v, err := el.Property("href")
		if err != nil {
			return "", err
		}
		return v.Str(), nil
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (e *rodElement) Input(text string) error {
	el, done := e.scoped()
	defer done()
	return el.Input(text)
}

func (e *rodElement) Click() error {
	el, done := e.scoped()
	defer done()
	return el.Click(proto.InputMouseButtonLeft, 1)
}
