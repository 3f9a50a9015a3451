package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/config"
	"github.com/RecoveryAshes/PageCrawl/internal/core"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	siteDir    string

	// 爬取参数
	siteFile   string
	outfile    string
	keyword    string
	maxPages   int
	noProgress bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "pagecrawl",
	Short: "分页列表详情爬取工具",
	Long: `PageCrawl - 基于浏览器的分页列表爬取工具

按站点配置登录或搜索,逐页遍历列表并从每个详情页提取一条记录:
  • 远程执行端与本地浏览器,失败时自动回退
  • 代理池 (tor / luminati / proxymesh) 与会话固定
  • 无头模式下的虚拟显示
  • 逐字段容错提取,追加写入CSV

示例:
  pagecrawl -f realestate -o realestate.csv
  pagecrawl --file realestate --keyword melbourne --max-pages 10 --output scrape.csv

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		cfg.MergeCLIFlags(logLevel, verbose)

		if err := utils.InitLogger(cfg.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}
		appConfig = cfg
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if siteFile == "" {
			return cmd.Help()
		}
		if err := ValidateFlags(maxPages); err != nil {
			return err
		}

		site, err := loadSite(siteFile)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// 中断时取消上下文,由爬取流程负责释放浏览器
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case sig := <-sigChan:
				utils.Warnf("收到中断信号: %v, 正在释放浏览器会话...", sig)
				cancel()
			case <-ctx.Done():
			}
		}()

		crawler := core.NewCrawler(config.SiteName(siteFile), site, appConfig, browser.NewRodLauncher())
		if !noProgress {
			bar := utils.NewProgressBar(-1, "📥 提取记录")
			defer bar.Finish()
			crawler.WithRecordHook(func(rec *models.Record) {
				_ = bar.Add(1)
			})
		}

		report, err := crawler.Crawl(ctx)
		printStats(report)
		if err != nil {
			return fmt.Errorf("爬取失败: %w", err)
		}
		utils.Info("✨ 爬取任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PageCrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// loadSite 读取站点配置并应用命令行覆盖项
func loadSite(name string) (*models.CrawlConfig, error) {
	site, err := config.NewSiteLoader(siteDir).Load(name)
	if err != nil {
		return nil, err
	}
	config.Overrides{Outfile: outfile, Keyword: keyword, MaxPages: maxPages}.Apply(site)
	return site, nil
}

func printStats(report models.CrawlReport) {
	stats := report.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("🆔 任务ID: %s\n", report.TaskID)
	fmt.Printf("✅ 列表页数: %d\n", stats.Pages)
	fmt.Printf("✅ 详情链接: %d\n", stats.Links)
	fmt.Printf("✅ 输出记录: %d\n", stats.Records)
	fmt.Printf("⚠️  空字段: %d\n", stats.NullFields)
	fmt.Printf("⚠️  跳过链接: %d\n", stats.SkippedLinks)
	fmt.Printf("❌ 写入失败: %d\n", stats.SinkErrors)
	fmt.Printf("🏁 结束状态: %s (%s)\n", stats.State, stats.EndReason)
	if report.Proxy != "" {
		fmt.Printf("🌐 代理: %s\n", report.Proxy)
	}
	fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
	fmt.Println("==================================================")
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&siteDir, "site-dir", config.DefaultSiteDir, "站点配置目录")

	// 爬取参数
	rootCmd.PersistentFlags().StringVarP(&siteFile, "file", "f", "", "站点配置名称或JSON文件路径 (必需)")
	rootCmd.Flags().StringVarP(&outfile, "output", "o", "", "输出CSV文件,覆盖站点配置的 outfile")
	rootCmd.Flags().StringVarP(&keyword, "keyword", "k", "", "搜索关键字,覆盖站点配置")
	rootCmd.Flags().IntVarP(&maxPages, "max-pages", "m", 0, "最大列表页数,覆盖站点配置")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
