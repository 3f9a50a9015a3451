package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/proxy"
	"github.com/RecoveryAshes/PageCrawl/internal/session"
)

// doctorCmd 检查运行环境
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查浏览器、虚拟显示和代理环境",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("==============================================")
		fmt.Println("  PageCrawl 环境验证")
		fmt.Println("==============================================")

		allOK := true
		fmt.Printf("✅ Go版本: %s\n", runtime.Version())
		fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

		if path, ok := browser.LookupBrowser(appConfig.Browser.Bin); ok {
			fmt.Printf("✅ 浏览器: %s\n", path)
		} else if appConfig.Browser.Grid.Enabled {
			fmt.Println("⚠️  未找到本地浏览器,只能使用远程执行端")
		} else {
			fmt.Println("❌ 未找到本地浏览器 - 请安装 Chrome/Chromium 或配置 browser.bin")
			allOK = false
		}

		if path, err := exec.LookPath("Xvfb"); err == nil {
			fmt.Printf("✅ Xvfb: %s\n", path)
		} else {
			fmt.Println("⚠️  Xvfb 未安装 - 无头模式将使用浏览器原生无头")
		}

		if status, err := session.ReadResources(); err == nil {
			fmt.Printf("✅ 可用内存: %dMB / %dMB\n", status.AvailableMemory>>20, status.TotalMemory>>20)
		} else {
			fmt.Printf("⚠️  %v\n", err)
		}

		tor := models.ProxyEndpoint{Host: "127.0.0.1", Port: 9050, Provider: models.ProviderTor}
		probe := proxy.NewProbe(appConfig.Proxy.ProbeTimeout, appConfig.Proxy.ProbeTarget)
		if err := probe.Check(context.Background(), tor); err == nil {
			fmt.Printf("✅ Tor SOCKS 代理可用: %s\n", tor.Address())
		} else {
			fmt.Printf("⚠️  Tor SOCKS 代理不可用: %v\n", err)
		}

		fmt.Println("==============================================")
		if !allOK {
			return fmt.Errorf("环境验证失败,请解决上述问题")
		}
		fmt.Println("✅ 环境验证通过!")
		return nil
	},
}
