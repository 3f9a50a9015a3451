package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/crawlers"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/output"
	"github.com/RecoveryAshes/PageCrawl/internal/proxy"
	"github.com/RecoveryAshes/PageCrawl/internal/session"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// Crawler 一次爬取任务的协调器
// 校验配置 -> 构建代理池 -> 获取会话 -> 分页爬取 -> 释放会话 -> 生成报告
type Crawler struct {
	site     string
	config   *models.CrawlConfig
	app      *Config
	launcher browser.Launcher
	taskID   string

	newDisplay session.DisplayFactory
	onRecord   func(rec *models.Record)
	sources    []proxy.Source
}

// NewCrawler 创建爬取任务
func NewCrawler(site string, config *models.CrawlConfig, app *Config, launcher browser.Launcher) *Crawler {
	if app == nil {
		app = &Config{}
	}
	return &Crawler{
		site:     site,
		config:   config,
		app:      app,
		launcher: launcher,
		taskID:   models.NewID(),
		sources:  app.ProxySources(config.UserAgent),
	}
}

// WithDisplayFactory 替换虚拟显示实现
func (c *Crawler) WithDisplayFactory(f session.DisplayFactory) *Crawler {
	c.newDisplay = f
	return c
}

// WithRecordHook 每输出一条记录调用 fn
func (c *Crawler) WithRecordHook(fn func(rec *models.Record)) *Crawler {
	c.onRecord = fn
	return c
}

// WithProxySources 替换代理来源
func (c *Crawler) WithProxySources(sources ...proxy.Source) *Crawler {
	c.sources = sources
	return c
}

// TaskID 任务ID
func (c *Crawler) TaskID() string {
	return c.taskID
}

// Validate 检查站点配置和选择器语法,不启动浏览器
func (c *Crawler) Validate() error {
	if err := c.config.Validate(); err != nil {
		return err
	}
	return utils.ValidateSelectors(c.config)
}

// Crawl 执行爬取任务
// 配置错误直接返回,不生成报告;之后的任何结果都会写入报告
func (c *Crawler) Crawl(ctx context.Context) (models.CrawlReport, error) {
	report := models.CrawlReport{
		TaskID:  c.taskID,
		Site:    c.site,
		Outfile: c.config.Outfile,
		Config:  *c.config,
	}

	if err := c.Validate(); err != nil {
		return report, err
	}

	utils.Infof("🚀 开始爬取任务 [%s]", c.taskID)
	utils.Infof("站点: %s", c.site)
	if c.config.LoginURL != "" {
		utils.Infof("登录页: %s", c.config.LoginURL)
	}
	if c.config.MainURL != "" {
		utils.Infof("主页: %s", c.config.MainURL)
	}
	utils.Infof("最大页数: %d", c.config.MaxNumOfPages)

	stats, err := c.run(ctx, &report)
	report.Stats = stats
	report.Finished = time.Now()
	if err != nil {
		report.Error = err.Error()
	}

	reporter := utils.NewReporter(c.app.Output.ReportDir)
	if _, rerr := reporter.GenerateReport(report); rerr != nil {
		utils.Warnf("生成报告失败: %v", rerr)
	}
	return report, err
}

func (c *Crawler) run(ctx context.Context, report *models.CrawlReport) (models.CrawlStats, error) {
	stats := models.CrawlStats{StartTime: time.Now(), State: string(crawlers.StateInit)}

	var sink crawlers.RecordSink
	if c.config.Outfile != "" {
		csvSink, err := output.NewCSVSink(c.config.Outfile)
		if err != nil {
			return c.failed(stats), err
		}
		sink = csvSink
		utils.Infof("输出文件: %s", csvSink.Path())
	} else {
		utils.Warn("未配置输出文件,记录只写入日志")
	}

	pool := proxy.NewPool()
	if c.config.Proxy != "" {
		n := proxy.Load(ctx, pool, c.sources...)
		utils.Infof("代理池加载 %d 个端点, 标签: %v", n, pool.Tags())
	}

	opts, err := c.app.SessionOptions()
	if err != nil {
		return c.failed(stats), err
	}
	provider := session.NewProvider(pool, c.launcher, opts)
	if c.newDisplay != nil {
		provider.WithDisplayFactory(c.newDisplay)
	}

	sess, err := provider.Acquire(ctx, c.config)
	if err != nil {
		return c.failed(stats), err
	}
	defer sess.Release()

	if sess.Proxy != nil {
		report.Proxy = sess.Proxy.String()
	}
	report.Remote = sess.Remote

	controller := crawlers.NewController(sess.Driver, c.config, sink, crawlers.ControllerOptions{
		ActionPause: c.app.Crawl.ActionPause,
		SearchWait:  c.app.Crawl.SearchWait,
		Release:     sess.Release,
		OnRecord:    c.onRecord,
	})

	stats, err = controller.Run(ctx)
	if err != nil && errors.Is(err, context.Canceled) {
		return stats, fmt.Errorf("爬取被中断: %w", err)
	}
	return stats, err
}

// failed 会话建立之前失败的统计
func (c *Crawler) failed(stats models.CrawlStats) models.CrawlStats {
	stats.State = string(crawlers.StateAborted)
	stats.EndReason = crawlers.EndAborted
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime).Seconds()
	return stats
}
