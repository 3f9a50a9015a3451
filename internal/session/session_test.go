package session

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/proxy"
)

// fakeDriver 记录调用次数的驱动
type fakeDriver struct {
	handles  []string
	closed   []string
	quits    int
	quitErr  error
	pageLoad time.Duration
	script   time.Duration
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }
func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) { return "", nil }
func (d *fakeDriver) FindElement(ctx context.Context, xpath string) (browser.Element, error) {
	return nil, &models.ElementNotFoundError{Selector: xpath}
}
func (d *fakeDriver) FindElements(ctx context.Context, xpath string) ([]browser.Element, error) {
	return nil, nil
}
func (d *fakeDriver) WaitElement(ctx context.Context, xpath string, timeout time.Duration) (browser.Element, error) {
	return nil, &models.ElementNotFoundError{Selector: xpath}
}
func (d *fakeDriver) WindowHandles(ctx context.Context) ([]string, error) { return d.handles, nil }
func (d *fakeDriver) CloseWindow(ctx context.Context, handle string) error {
	d.closed = append(d.closed, handle)
	return nil
}
func (d *fakeDriver) SetTimeouts(pageLoad, script time.Duration) {
	d.pageLoad, d.script = pageLoad, script
}
func (d *fakeDriver) Quit() error {
	d.quits++
	return d.quitErr
}

// fakeLauncher 前 remoteFailures 次远程连接失败
type fakeLauncher struct {
	remoteFailures int
	localErr       error

	remoteCalls  int
	localCalls   int
	lastDisplay  string
	lastProfile  browser.Profile
	remoteDriver *fakeDriver
	localDriver  *fakeDriver
}

func newFakeLauncher(remoteFailures int) *fakeLauncher {
	return &fakeLauncher{
		remoteFailures: remoteFailures,
		remoteDriver:   &fakeDriver{handles: []string{"main"}},
		localDriver:    &fakeDriver{handles: []string{"main", "blank", "popup"}},
	}
}

func (l *fakeLauncher) Remote(ctx context.Context, executor string, profile browser.Profile) (browser.Driver, error) {
	l.remoteCalls++
	l.lastProfile = profile
	if l.remoteCalls <= l.remoteFailures {
		return nil, errors.New("grid unreachable")
	}
	return l.remoteDriver, nil
}

func (l *fakeLauncher) Local(ctx context.Context, profile browser.Profile, display string) (browser.Driver, error) {
	l.localCalls++
	l.lastDisplay = display
	l.lastProfile = profile
	if l.localErr != nil {
		return nil, l.localErr
	}
	return l.localDriver, nil
}

// fakeDisplay 可控的虚拟显示
type fakeDisplay struct {
	startErr error
	starts   int
	stops    int
}

func (d *fakeDisplay) Start(ctx context.Context) error {
	d.starts++
	return d.startErr
}
func (d *fakeDisplay) Name() string { return ":42" }
func (d *fakeDisplay) Stop() error {
	d.stops++
	return nil
}

func baseConfig() *models.CrawlConfig {
	cfg := &models.CrawlConfig{MainURL: "https://example.com"}
	cfg.ApplyDefaults()
	return cfg
}

func TestAcquire_RemoteRetry(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		fallback     bool
		wantRemote   bool
		wantLocal    int
		wantErr      bool
		wantAttempts int
	}{
		{"失败两次后第三次成功", 2, true, true, 0, false, 0},
		{"全部失败回退本地", 3, true, false, 1, false, 0},
		{"全部失败且禁止回退", 3, false, false, 0, true, 3},
		{"首次成功", 0, false, true, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLauncher(tt.failures)
			p := NewProvider(nil, l, Options{GridEnabled: true, Executor: "http://grid:7317", LocalFallback: tt.fallback})

			sess, err := p.Acquire(context.Background(), baseConfig())
			if tt.wantErr {
				var acqErr *models.SessionAcquisitionError
				if !errors.As(err, &acqErr) {
					t.Fatalf("期望 SessionAcquisitionError, 得到 %v", err)
				}
				if len(acqErr.Attempts) != tt.wantAttempts {
					t.Errorf("记录的尝试次数 = %d, 期望 %d", len(acqErr.Attempts), tt.wantAttempts)
				}
				return
			}
			if err != nil {
				t.Fatalf("Acquire() 错误: %v", err)
			}
			if sess.Remote != tt.wantRemote {
				t.Errorf("Remote = %v, 期望 %v", sess.Remote, tt.wantRemote)
			}
			if l.localCalls != tt.wantLocal {
				t.Errorf("本地启动次数 = %d, 期望 %d", l.localCalls, tt.wantLocal)
			}
			if l.remoteCalls > 3 {
				t.Errorf("远程尝试次数超过上限: %d", l.remoteCalls)
			}
		})
	}
}

func TestAcquire_UnknownProxyFailsClosed(t *testing.T) {
	l := newFakeLauncher(0)
	p := NewProvider(proxy.NewPool(), l, Options{GridEnabled: true})

	cfg := baseConfig()
	cfg.Proxy = "nosuchprovider"
	_, err := p.Acquire(context.Background(), cfg)

	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("期望 ConfigurationError, 得到 %v", err)
	}
	if l.remoteCalls != 0 || l.localCalls != 0 {
		t.Errorf("配置错误时不应启动浏览器 (remote=%d local=%d)", l.remoteCalls, l.localCalls)
	}
}

func TestAcquire_ProxyProfile(t *testing.T) {
	pool := proxy.NewPool()
	pool.AddAddresses(models.ProviderLuminati, []string{"zproxy.example.com:22225"})
	pool.EnsureDefaults()

	tests := []struct {
		name        string
		tag         string
		wantServer  string
		wantDNS     bool
		wantToken   string
		credentials *models.ProxyCredentials
	}{
		{
			name:        "luminati 固定会话",
			tag:         models.ProviderLuminati,
			wantServer:  "http://zproxy.example.com:22225",
			wantToken:   "u-session-TOK:p",
			credentials: &models.ProxyCredentials{Username: "u", Password: "p", PinSession: true},
		},
		{
			name:        "tor 远程解析且不带凭据",
			tag:         models.ProviderTor,
			wantServer:  "socks5://127.0.0.1:9050",
			wantDNS:     true,
			credentials: &models.ProxyCredentials{Username: "u", Password: "p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLauncher(0)
			p := NewProvider(pool, l, Options{Credentials: tt.credentials}).
				WithTokenFunc(func() string { return "TOK" })

			cfg := baseConfig()
			cfg.Proxy = tt.tag
			sess, err := p.Acquire(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Acquire() 错误: %v", err)
			}
			prof := l.lastProfile
			if prof.ProxyServer != tt.wantServer {
				t.Errorf("ProxyServer = %s, 期望 %s", prof.ProxyServer, tt.wantServer)
			}
			if prof.RemoteDNS != tt.wantDNS {
				t.Errorf("RemoteDNS = %v", prof.RemoteDNS)
			}
			token := prof.AuthToken()
			if tt.wantToken == "" {
				if token != "" {
					t.Errorf("不应设置认证令牌: %s", token)
				}
			} else {
				raw, _ := base64.StdEncoding.DecodeString(token)
				if string(raw) != tt.wantToken {
					t.Errorf("认证令牌 = %s, 期望 %s", raw, tt.wantToken)
				}
			}
			if sess.Proxy == nil || sess.Proxy.Provider != tt.tag {
				t.Errorf("会话代理 = %v", sess.Proxy)
			}
		})
	}
}

type fakeProbe struct {
	bad   map[string]bool
	calls int
}

func (f *fakeProbe) Check(ctx context.Context, ep models.ProxyEndpoint) error {
	f.calls++
	if f.bad[ep.Host] {
		return errors.New("unreachable")
	}
	return nil
}

func TestAcquire_ProbeSkipsDeadProxy(t *testing.T) {
	pool := proxy.NewPool().WithRand(func(n int) int { return 0 })
	pool.AddAddresses("http", []string{"10.0.0.1:8080", "10.0.0.2:8080"})

	probe := &fakeProbe{bad: map[string]bool{"10.0.0.1": true}}
	p := NewProvider(pool, newFakeLauncher(0), Options{Probe: probe})

	cfg := baseConfig()
	cfg.Proxy = "http"
	sess, err := p.Acquire(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Acquire() 错误: %v", err)
	}
	if sess.Proxy.Host != "10.0.0.2" {
		t.Errorf("应跳过不可达代理, 实际 %s", sess.Proxy.Host)
	}

	probe.bad["10.0.0.2"] = true
	if _, err := p.Acquire(context.Background(), cfg); err == nil {
		t.Errorf("全部代理不可达时应失败")
	}
}

func TestAcquire_LocalDisplay(t *testing.T) {
	tests := []struct {
		name        string
		headless    bool
		startErr    error
		localErr    error
		wantDisplay string
		wantStarts  int
		wantStops   int
		wantErr     bool
	}{
		{"无头模式使用虚拟显示", true, nil, nil, ":42", 1, 0, false},
		{"有界面模式不启动显示", false, nil, nil, "", 0, 0, false},
		{"显示启动失败回退原生无头", true, errors.New("no Xvfb"), nil, "", 1, 0, false},
		{"浏览器启动失败时停止显示", true, nil, errors.New("no chrome"), ":42", 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLauncher(0)
			l.localErr = tt.localErr
			disp := &fakeDisplay{startErr: tt.startErr}
			p := NewProvider(nil, l, Options{UseDisplay: true}).
				WithDisplayFactory(func(w, h int) Display {
					if w != DefaultDisplayWidth || h != DefaultDisplayHeight {
						t.Errorf("显示尺寸 = %dx%d", w, h)
					}
					return disp
				})

			cfg := baseConfig()
			cfg.Headless = tt.headless
			sess, err := p.Acquire(context.Background(), cfg)

			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var acqErr *models.SessionAcquisitionError
				if !errors.As(err, &acqErr) {
					t.Errorf("期望 SessionAcquisitionError, 得到 %T", err)
				}
			}
			if l.lastDisplay != tt.wantDisplay {
				t.Errorf("传入的显示 = %q, 期望 %q", l.lastDisplay, tt.wantDisplay)
			}
			if disp.starts != tt.wantStarts || disp.stops != tt.wantStops {
				t.Errorf("starts=%d stops=%d, 期望 %d/%d", disp.starts, disp.stops, tt.wantStarts, tt.wantStops)
			}
			if sess != nil {
				if l.lastProfile.Headless != tt.headless {
					t.Errorf("Profile.Headless = %v", l.lastProfile.Headless)
				}
				sess.Release()
			}
		})
	}
}

func TestAcquire_TimeoutsAndWindows(t *testing.T) {
	l := newFakeLauncher(0)
	p := NewProvider(nil, l, Options{})

	cfg := baseConfig()
	sess, err := p.Acquire(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Acquire() 错误: %v", err)
	}
	d := l.localDriver
	if d.pageLoad != 0 || d.script != DefaultScriptTimeout {
		t.Errorf("未配置超时: pageLoad=%s script=%s", d.pageLoad, d.script)
	}
	if len(d.closed) != 2 || d.closed[0] != "blank" || d.closed[1] != "popup" {
		t.Errorf("应关闭除第一个外的窗口, 实际 %v", d.closed)
	}
	sess.Release()

	cfg.BrowserTimeout = 30
	l2 := newFakeLauncher(0)
	if _, err := NewProvider(nil, l2, Options{}).Acquire(context.Background(), cfg); err != nil {
		t.Fatalf("Acquire() 错误: %v", err)
	}
	if l2.localDriver.pageLoad != 30*time.Second || l2.localDriver.script != 30*time.Second {
		t.Errorf("配置超时未生效: %s / %s", l2.localDriver.pageLoad, l2.localDriver.script)
	}
}

func TestSession_ReleaseIdempotent(t *testing.T) {
	d := &fakeDriver{quitErr: errors.New("already gone")}
	disp := &fakeDisplay{}
	sess := &Session{ID: "s1", Driver: d, display: disp}

	sess.Release()
	sess.Release()

	if d.quits != 1 {
		t.Errorf("Quit 调用次数 = %d, 期望 1", d.quits)
	}
	if disp.stops != 1 {
		t.Errorf("退出失败后仍应停止显示, stops = %d", disp.stops)
	}

	partial := &Session{ID: "partial"}
	partial.Release()
	partial.Release()

	var nilSession *Session
	nilSession.Release()
}
