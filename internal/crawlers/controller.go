package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// State 爬取状态
type State string

const (
	StateInit           State = "init"
	StateAuthenticating State = "authenticating"
	StateSearching      State = "searching"
	StateListingPage    State = "listing_page"
	StateExtracting     State = "extracting_records"
	StatePaginating     State = "paginating"
	StateDone           State = "done"
	StateAborted        State = "aborted"
)

// 结束原因
const (
	EndPaginationEnd = "pagination_end"
	EndMaxPages      = "max_pages"
	EndAborted       = "aborted"
)

// DefaultSearchWait 搜索后等待主内容的上限
const DefaultSearchWait = 10 * time.Second

// ControllerOptions 控制器选项
type ControllerOptions struct {
	// ActionPause 登录/搜索步骤之间的停顿,0 表示不停顿
	ActionPause time.Duration
	SearchWait  time.Duration
	// Waiter 为空时按配置的 wait_between 创建
	Waiter *Waiter
	// Release 致命错误时释放会话
	Release func()
	// OnRecord 每输出一条记录调用
	OnRecord func(rec *models.Record)
}

// Controller 登录/搜索后逐页遍历列表并提取详情
type Controller struct {
	driver    browser.Driver
	cfg       *models.CrawlConfig
	extractor *Extractor
	waiter    *Waiter
	opts      ControllerOptions

	state  State
	cursor models.PageCursor
	stats  models.CrawlStats
}

// NewController 创建控制器,cfg 应已通过 Validate
func NewController(driver browser.Driver, cfg *models.CrawlConfig, sink RecordSink, opts ControllerOptions) *Controller {
	if opts.SearchWait <= 0 {
		opts.SearchWait = DefaultSearchWait
	}
	waiter := opts.Waiter
	if waiter == nil {
		waiter = NewWaiter(cfg.WaitBounds())
	}
	return &Controller{
		driver:    driver,
		cfg:       cfg,
		extractor: NewExtractor(driver, cfg, sink, waiter),
		waiter:    waiter,
		opts:      opts,
		state:     StateInit,
	}
}

// State 当前状态
func (c *Controller) State() State {
	return c.state
}

// Cursor 当前分页游标
func (c *Controller) Cursor() models.PageCursor {
	return c.cursor
}

// Run 执行一次完整爬取
// 分页结束或达到最大页数时返回 nil;致命错误时释放会话并返回错误,统计中保留已处理的页数和记录数
func (c *Controller) Run(ctx context.Context) (models.CrawlStats, error) {
	c.stats = models.CrawlStats{StartTime: time.Now()}

	url, err := c.enter(ctx)
	if err != nil {
		return c.abort(err)
	}
	c.cursor = models.PageCursor{URL: url}

	reason, err := c.paginate(ctx)
	if err != nil {
		return c.abort(err)
	}

	c.cursor.Done = true
	c.setState(StateDone)
	c.finish(reason)
	utils.Infof("✅ 爬取完成: %d 页, %d 条记录 (%s)", c.stats.Pages, c.stats.Records, reason)
	return c.stats, nil
}

// enter 登录或搜索,返回浏览器实际停留的第一页列表URL
func (c *Controller) enter(ctx context.Context) (string, error) {
	if c.cfg.LoginURL != "" {
		c.setState(StateAuthenticating)
		if err := c.login(ctx); err != nil {
			return "", err
		}
		if c.cfg.MainURL != "" {
			if err := c.navigate(ctx, c.cfg.MainURL, "main"); err != nil {
				return "", err
			}
		}
		return c.driver.CurrentURL(ctx)
	}

	c.setState(StateSearching)
	if err := c.search(ctx); err != nil {
		return "", err
	}
	return c.driver.CurrentURL(ctx)
}

func (c *Controller) login(ctx context.Context) error {
	if err := c.navigate(ctx, c.cfg.LoginURL, "login"); err != nil {
		return err
	}
	if err := c.pause(ctx); err != nil {
		return err
	}

	user, pass, _ := c.cfg.Credentials()
	if err := c.fill(ctx, models.SelectorUsername, user); err != nil {
		return err
	}
	if err := c.fill(ctx, models.SelectorPassword, pass); err != nil {
		return err
	}
	if err := c.pause(ctx); err != nil {
		return err
	}
	if err := c.click(ctx, models.SelectorSubmit); err != nil {
		return err
	}
	utils.Infof("已提交登录表单 (%s)", utils.RedactAuth(c.cfg.Auth))
	return nil
}

func (c *Controller) search(ctx context.Context) error {
	if err := c.navigate(ctx, c.cfg.MainURL, "main"); err != nil {
		return err
	}
	if err := c.pause(ctx); err != nil {
		return err
	}
	if c.cfg.Keyword != "" {
		if err := c.fill(ctx, models.SelectorSearch, c.cfg.Keyword); err != nil {
			return err
		}
	}
	if err := c.click(ctx, models.SelectorSearchSubmit); err != nil {
		return err
	}

	// 主内容等待超时不影响后续分页
	if _, err := c.driver.WaitElement(ctx, c.cfg.MainContentSelector(), c.opts.SearchWait); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		utils.Warnf("等待主内容超时,继续处理: %v", err)
	}
	return nil
}

// paginate 逐页处理,返回结束原因
func (c *Controller) paginate(ctx context.Context) (string, error) {
	for c.stats.Pages < c.cfg.MaxNumOfPages {
		c.setState(StateListingPage)
		utils.Infof("📄 第 %d 页: %s", c.cursor.Index+1, c.cursor.URL)
		links, err := c.collectLinks(ctx)
		if err != nil {
			return "", err
		}
		c.stats.Pages++
		c.stats.Links += len(links)
		c.stats.LastURL = c.cursor.URL

		c.setState(StateExtracting)
		for _, link := range links {
			rec, err := c.extractor.Extract(ctx, link)
			if rec != nil {
				c.stats.Records++
				c.stats.NullFields += rec.NullCount()
				if c.opts.OnRecord != nil {
					c.opts.OnRecord(rec)
				}
			}
			if err != nil {
				return "", err
			}
		}

		// 提取过程离开了列表页
		if err := c.navigate(ctx, c.cursor.URL, "listing"); err != nil {
			return "", err
		}

		c.setState(StatePaginating)
		if err := c.next(ctx); err != nil {
			if errors.Is(err, models.ErrPaginationEnd) {
				return EndPaginationEnd, nil
			}
			return "", err
		}

		url, err := c.driver.CurrentURL(ctx)
		if err != nil {
			return "", err
		}
		c.cursor.Advance(url)
	}
	utils.Infof("已达到最大页数 %d", c.cfg.MaxNumOfPages)
	return EndMaxPages, nil
}

// collectLinks 按页面顺序收集详情链接,跳过空 href
func (c *Controller) collectLinks(ctx context.Context) ([]string, error) {
	selector, _ := c.cfg.Selector(models.SelectorLink)
	els, err := c.driver.FindElements(ctx, selector)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(els))
	for _, el := range els {
		href, err := el.Attribute("href")
		if err != nil || href == "" {
			c.stats.SkippedLinks++
			continue
		}
		links = append(links, href)
	}
	utils.Debugf("本页收集到 %d 个链接", len(links))
	return links, nil
}

// next 点击下一页
// 控件不存在或无法点击都视为分页结束
func (c *Controller) next(ctx context.Context) error {
	selector, _ := c.cfg.Selector(models.SelectorNext)
	el, err := c.driver.FindElement(ctx, selector)
	if err != nil {
		if models.IsElementNotFound(err) {
			return models.ErrPaginationEnd
		}
		return err
	}
	if err := el.Click(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		utils.Warnf("下一页控件无法点击,结束分页: %v", err)
		return models.ErrPaginationEnd
	}
	if _, err := c.waiter.Delay(ctx); err != nil {
		return err
	}
	return nil
}

func (c *Controller) navigate(ctx context.Context, url, phase string) error {
	if err := c.driver.Navigate(ctx, url); err != nil {
		return withPhase(err, phase)
	}
	return nil
}

func (c *Controller) fill(ctx context.Context, name, text string) error {
	el, err := c.find(ctx, name)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("输入 %s 失败: %w", name, err)
	}
	return nil
}

func (c *Controller) click(ctx context.Context, name string) error {
	el, err := c.find(ctx, name)
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("点击 %s 失败: %w", name, err)
	}
	return nil
}

func (c *Controller) find(ctx context.Context, name string) (browser.Element, error) {
	selector, ok := c.cfg.Selector(name)
	if !ok {
		return nil, &models.ConfigurationError{Field: "xpath." + name, Reason: "缺少必需的选择器"}
	}
	el, err := c.driver.FindElement(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("查找 %s 失败: %w", name, err)
	}
	return el, nil
}

func (c *Controller) pause(ctx context.Context) error {
	return sleepContext(ctx, c.opts.ActionPause)
}

func (c *Controller) setState(s State) {
	if c.state != s {
		utils.Debugf("状态 %s -> %s", c.state, s)
	}
	c.state = s
	c.stats.State = string(s)
}

func (c *Controller) finish(reason string) {
	c.stats.EndReason = reason
	c.stats.SinkErrors = c.extractor.SinkErrors()
	c.stats.EndTime = time.Now()
	c.stats.Duration = c.stats.EndTime.Sub(c.stats.StartTime).Seconds()
}

// abort 记录错误并释放会话
func (c *Controller) abort(err error) (models.CrawlStats, error) {
	utils.Errorf("爬取中止 [%s]: %v", c.state, err)
	c.setState(StateAborted)
	c.finish(EndAborted)
	if c.opts.Release != nil {
		c.opts.Release()
	}
	return c.stats, err
}

// SinkErrors 写入失败次数
func (c *Controller) SinkErrors() int {
	return c.extractor.SinkErrors()
}
