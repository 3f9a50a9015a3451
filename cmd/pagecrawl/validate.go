package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/PageCrawl/internal/config"
	"github.com/RecoveryAshes/PageCrawl/internal/core"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验站点配置,不启动浏览器",
	RunE: func(cmd *cobra.Command, args []string) error {
		if siteFile == "" {
			return fmt.Errorf("需要通过 -f 指定站点配置")
		}
		site, err := config.NewSiteLoader(siteDir).Load(siteFile)
		if err != nil {
			return err
		}

		crawler := core.NewCrawler(config.SiteName(siteFile), site, appConfig, nil)
		if err := crawler.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		redacted := site.Redacted()
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return err
		}
		utils.Info("✅ 配置验证通过!")
		fmt.Println(string(data))
		return nil
	},
}

// ValidateFlags 验证命令行标志
func ValidateFlags(maxPages int) error {
	if maxPages < 0 {
		return fmt.Errorf("最大页数不能为负数,当前值: %d", maxPages)
	}
	return nil
}
