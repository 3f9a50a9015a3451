package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/proxy"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// 默认值
const (
	DefaultGridRetries   = 2
	DefaultScriptTimeout = 120 * time.Second
	DefaultProbeAttempts = 3
)

// Prober 代理可达性探测
type Prober interface {
	Check(ctx context.Context, ep models.ProxyEndpoint) error
}

// Options 会话提供者选项
type Options struct {
	GridEnabled   bool
	Executor      string
	LocalFallback bool
	GridRetries   int // 首次之后的重试次数

	UseDisplay    bool
	DisplayWidth  int
	DisplayHeight int

	ScriptTimeout time.Duration
	Preferences   map[string]any
	Extensions    []string
	Arguments     map[string]string
	Stealth       bool
	Bin           string

	Credentials   *models.ProxyCredentials
	ProxyOverride *models.ProxyEndpoint
	Probe         Prober
	ProbeAttempts int

	// MinFreeMemoryMB 本地启动前的内存检查阈值,0 表示不检查
	MinFreeMemoryMB int
}

// Provider 构建浏览器会话
type Provider struct {
	opts       Options
	pool       *proxy.Pool
	launcher   browser.Launcher
	newDisplay DisplayFactory
	token      proxy.TokenFunc
}

// NewProvider 创建会话提供者
func NewProvider(pool *proxy.Pool, launcher browser.Launcher, opts Options) *Provider {
	if opts.GridRetries <= 0 {
		opts.GridRetries = DefaultGridRetries
	}
	if opts.DisplayWidth <= 0 {
		opts.DisplayWidth = DefaultDisplayWidth
	}
	if opts.DisplayHeight <= 0 {
		opts.DisplayHeight = DefaultDisplayHeight
	}
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = DefaultScriptTimeout
	}
	if opts.ProbeAttempts <= 0 {
		opts.ProbeAttempts = DefaultProbeAttempts
	}
	if pool == nil {
		pool = proxy.NewPool()
	}
	return &Provider{
		opts:       opts,
		pool:       pool,
		launcher:   launcher,
		newDisplay: NewXvfbDisplay,
		token:      proxy.RandomToken,
	}
}

// WithDisplayFactory 替换虚拟显示实现
func (p *Provider) WithDisplayFactory(f DisplayFactory) *Provider {
	p.newDisplay = f
	return p
}

// WithTokenFunc 替换会话令牌生成
func (p *Provider) WithTokenFunc(f proxy.TokenFunc) *Provider {
	p.token = f
	return p
}

// Acquire 获取会话
// 代理配置错误返回 *models.ConfigurationError,其余失败返回 *models.SessionAcquisitionError
func (p *Provider) Acquire(ctx context.Context, cfg *models.CrawlConfig) (*Session, error) {
	profile := p.buildProfile(cfg)

	ep, err := p.resolveProxy(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if ep != nil {
		p.applyProxy(&profile, ep)
	}

	sess := &Session{ID: models.NewID(), Proxy: ep, Profile: profile}

	var attempts []error
	if p.opts.GridEnabled {
		driver, errs := p.acquireRemote(ctx, profile)
		attempts = errs
		switch {
		case driver != nil:
			sess.Driver = driver
			sess.Remote = true
		case ctx.Err() != nil:
			return nil, &models.SessionAcquisitionError{Attempts: attempts, Cause: ctx.Err()}
		case !p.opts.LocalFallback:
			return nil, &models.SessionAcquisitionError{
				Attempts: attempts,
				Cause:    errors.New("远程执行端不可用且未启用本地回退"),
			}
		default:
			utils.Warnf("远程执行端 %d 次尝试均失败,回退到本地浏览器", len(attempts))
		}
	}

	if sess.Driver == nil {
		if err := p.acquireLocal(ctx, cfg, profile, sess); err != nil {
			return nil, &models.SessionAcquisitionError{Attempts: attempts, Cause: err}
		}
	}

	p.applyTimeouts(sess.Driver, cfg)
	p.closeExtraWindows(ctx, sess.Driver)

	mode := "本地"
	if sess.Remote {
		mode = "远程"
	}
	utils.Infof("✅ 浏览器会话就绪 [%s] 模式=%s 显示=%s", sess.ID, mode, displayLabel(sess))
	return sess, nil
}

func (p *Provider) buildProfile(cfg *models.CrawlConfig) browser.Profile {
	profile := browser.NewProfile()
	profile.Bin = p.opts.Bin
	profile.Headless = cfg.Headless
	profile.UserAgent = cfg.UserAgent
	profile.DisableImages = cfg.DisableImages
	profile.Stealth = p.opts.Stealth
	profile.Extensions = append(profile.Extensions, p.opts.Extensions...)
	for k, v := range p.opts.Preferences {
		profile.SetPreference(k, v)
	}
	for k, v := range p.opts.Arguments {
		profile.Arguments[k] = v
	}
	return profile
}

// resolveProxy 选择代理端点,启用探测时跳过不可达端点
func (p *Provider) resolveProxy(ctx context.Context, cfg *models.CrawlConfig) (*models.ProxyEndpoint, error) {
	if cfg.Proxy == "" {
		return nil, nil
	}

	var override *models.ProxyEndpoint
	if p.opts.ProxyOverride != nil {
		o := *p.opts.ProxyOverride
		if o.Provider == "" {
			o.Provider = cfg.Proxy
		}
		override = &o
	}

	var probeErrs []error
	for attempt := 1; attempt <= p.opts.ProbeAttempts; attempt++ {
		ep, err := p.pool.Resolve(cfg.Proxy, override)
		if err != nil {
			if len(probeErrs) > 0 {
				return nil, &models.SessionAcquisitionError{Attempts: probeErrs, Cause: errors.New("没有可达的代理端点")}
			}
			return nil, err
		}
		if ep.Provider != models.ProviderTor && p.opts.Credentials != nil && p.opts.Credentials.Username != "" {
			cred := *p.opts.Credentials
			ep.Credentials = &cred
		}
		if p.opts.Probe == nil {
			return &ep, nil
		}

		err = p.opts.Probe.Check(ctx, ep)
		if err == nil {
			return &ep, nil
		}
		utils.Warnf("代理探测失败 (第%d次) %s: %v", attempt, ep, err)
		probeErrs = append(probeErrs, err)
		if override != nil {
			break
		}
		p.pool.Remove(ep)
	}
	return nil, &models.SessionAcquisitionError{Attempts: probeErrs, Cause: errors.New("没有可达的代理端点")}
}

// applyProxy 写入代理参数和认证令牌
func (p *Provider) applyProxy(profile *browser.Profile, ep *models.ProxyEndpoint) {
	profile.ProxyServer = ep.ServerURL()
	profile.ProxyHost = ep.Host
	profile.RemoteDNS = ep.IsSOCKS()

	if ep.Credentials != nil {
		token := proxy.EncodeCredentials(ep.Provider, *ep.Credentials, p.token)
		profile.SetPreference(browser.PrefProxyAuthToken, token)
	}
	utils.Infof("使用代理 %s (%s)", ep, utils.RedactCredential(ep.Credentials))
}

// acquireRemote 首次尝试加有限次重试,返回每次失败的错误
func (p *Provider) acquireRemote(ctx context.Context, profile browser.Profile) (browser.Driver, []error) {
	total := 1 + p.opts.GridRetries
	attempts := make([]error, 0, total)

	for i := 1; i <= total; i++ {
		if ctx.Err() != nil {
			break
		}
		driver, err := p.launcher.Remote(ctx, p.opts.Executor, profile)
		if err == nil {
			if i > 1 {
				utils.Infof("远程执行端第 %d 次尝试成功", i)
			}
			return driver, attempts
		}
		attempts = append(attempts, err)
		utils.Warnf("连接远程执行端失败 (%d/%d) %s: %v", i, total, p.opts.Executor, err)
	}
	return nil, attempts
}

// acquireLocal 本地启动,无头模式先启动虚拟显示
func (p *Provider) acquireLocal(ctx context.Context, cfg *models.CrawlConfig, profile browser.Profile, sess *Session) error {
	if p.opts.MinFreeMemoryMB > 0 {
		checkResources(p.opts.MinFreeMemoryMB)
	}

	var display Display
	if cfg.Headless && p.opts.UseDisplay {
		d := p.newDisplay(p.opts.DisplayWidth, p.opts.DisplayHeight)
		if err := d.Start(ctx); err != nil {
			utils.Warnf("虚拟显示启动失败,改用浏览器原生无头模式: %v", err)
		} else {
			display = d
		}
	}

	name := ""
	if display != nil {
		name = display.Name()
	}
	driver, err := p.launcher.Local(ctx, profile, name)
	if err != nil {
		if display != nil {
			if stopErr := display.Stop(); stopErr != nil {
				utils.Warnf("停止虚拟显示失败: %v", stopErr)
			}
		}
		return fmt.Errorf("本地浏览器启动失败: %w", err)
	}

	sess.Driver = driver
	sess.display = display
	return nil
}

func (p *Provider) applyTimeouts(driver browser.Driver, cfg *models.CrawlConfig) {
	pageLoad := cfg.Timeout()
	script := p.opts.ScriptTimeout
	if pageLoad > 0 {
		script = pageLoad
	}
	driver.SetTimeouts(pageLoad, script)
}

// closeExtraWindows 关闭启动过程中打开的其他窗口
func (p *Provider) closeExtraWindows(ctx context.Context, driver browser.Driver) {
	handles, err := driver.WindowHandles(ctx)
	if err != nil {
		utils.Warnf("获取窗口列表失败: %v", err)
		return
	}
	for _, h := range handles[min(1, len(handles)):] {
		if err := driver.CloseWindow(ctx, h); err != nil {
			utils.Warnf("关闭多余窗口失败 %s: %v", h, err)
		}
	}
}

func displayLabel(s *Session) string {
	if name := s.Display(); name != "" {
		return name
	}
	if s.Profile.Headless {
		return "headless"
	}
	return "无"
}
