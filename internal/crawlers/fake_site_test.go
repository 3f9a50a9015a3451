package crawlers

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
)

// fakeSite 内存中的站点,按 URL 保存每页的元素
type fakeSite struct {
	pages       map[string]map[string][]*fakeElement
	current     string
	timeoutURLs map[string]bool
	redirects   map[string]string

	navigations []string
	inputs      map[string]string
	waited      []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:       make(map[string]map[string][]*fakeElement),
		timeoutURLs: make(map[string]bool),
		redirects:   make(map[string]string),
		inputs:      make(map[string]string),
	}
}

// add 在页面 url 上添加匹配 xpath 的元素
func (s *fakeSite) add(url, xpath string, els ...*fakeElement) {
	if s.pages[url] == nil {
		s.pages[url] = make(map[string][]*fakeElement)
	}
	for _, el := range els {
		el.site = s
		el.xpath = xpath
	}
	s.pages[url][xpath] = append(s.pages[url][xpath], els...)
}

func (s *fakeSite) Navigate(ctx context.Context, url string) error {
	s.navigations = append(s.navigations, url)
	if s.timeoutURLs[url] {
		return &models.NavigationTimeoutError{URL: url, Timeout: time.Second, Cause: context.DeadlineExceeded}
	}
	s.current = url
	if to, ok := s.redirects[url]; ok {
		s.current = to
	}
	return nil
}

func (s *fakeSite) CurrentURL(ctx context.Context) (string, error) { return s.current, nil }

func (s *fakeSite) FindElement(ctx context.Context, xpath string) (browser.Element, error) {
	els := s.pages[s.current][xpath]
	if len(els) == 0 {
		return nil, &models.ElementNotFoundError{Selector: xpath}
	}
	return els[0], nil
}

func (s *fakeSite) FindElements(ctx context.Context, xpath string) ([]browser.Element, error) {
	els := s.pages[s.current][xpath]
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (s *fakeSite) WaitElement(ctx context.Context, xpath string, timeout time.Duration) (browser.Element, error) {
	s.waited = append(s.waited, xpath)
	return s.FindElement(ctx, xpath)
}

func (s *fakeSite) WindowHandles(ctx context.Context) ([]string, error)  { return []string{"main"}, nil }
func (s *fakeSite) CloseWindow(ctx context.Context, handle string) error { return nil }
func (s *fakeSite) SetTimeouts(pageLoad, script time.Duration)           {}
func (s *fakeSite) Quit() error                                          { return nil }

// cancellingSite 第一次查找元素时取消上下文
type cancellingSite struct {
	*fakeSite
	cancel context.CancelFunc
}

func (s *cancellingSite) FindElement(ctx context.Context, xpath string) (browser.Element, error) {
	s.cancel()
	return nil, ctx.Err()
}

func (s *cancellingSite) FindElements(ctx context.Context, xpath string) ([]browser.Element, error) {
	s.cancel()
	return nil, ctx.Err()
}

// fakeElement 点击时可以跳转到 clickTo
type fakeElement struct {
	site     *fakeSite
	xpath    string
	text     string
	href     string
	clickTo  string
	clickErr error
	textErr  error
}

func (e *fakeElement) Text() (string, error) { return e.text, e.textErr }

func (e *fakeElement) Attribute(name string) (string, error) {
	if name != "href" {
		return "", errors.New("unsupported attribute")
	}
	return e.href, nil
}

func (e *fakeElement) Input(text string) error {
	e.site.inputs[e.xpath] = text
	return nil
}

func (e *fakeElement) Click() error {
	if e.clickErr != nil {
		return e.clickErr
	}
	if e.clickTo != "" {
		e.site.current = e.clickTo
	}
	return nil
}

// memorySink 保存写入的记录
type memorySink struct {
	records []*models.Record
	err     error
}

func (m *memorySink) Append(rec *models.Record, fieldOrder []string) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

// recordingSleep 记录等待时长而不真正睡眠
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}
