package session

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// ResourceStatus 本地启动浏览器前的主机资源快照
type ResourceStatus struct {
	TotalMemory     uint64
	AvailableMemory uint64
	CPUUsage        float64 // 百分比,读取失败时为 -1
}

// 测试中替换
var (
	virtualMemory = mem.VirtualMemory
	cpuPercent    = cpu.Percent
)

// ReadResources 读取内存和CPU使用率
func ReadResources() (ResourceStatus, error) {
	vm, err := virtualMemory()
	if err != nil {
		return ResourceStatus{}, fmt.Errorf("获取系统内存失败: %w", err)
	}
	status := ResourceStatus{
		TotalMemory:     vm.Total,
		AvailableMemory: vm.Available,
		CPUUsage:        -1,
	}
	if percentages, err := cpuPercent(100*time.Millisecond, false); err == nil && len(percentages) > 0 {
		status.CPUUsage = percentages[0]
	}
	return status, nil
}

// checkResources 可用内存低于阈值时只记录警告,不阻止启动
func checkResources(minFreeMB int) ResourceStatus {
	status, err := ReadResources()
	if err != nil {
		utils.Debugf("跳过资源检查: %v", err)
		return status
	}
	availMB := status.AvailableMemory / 1024 / 1024
	if availMB < uint64(minFreeMB) {
		utils.Warnf("⚠️  可用内存不足: %dMB (建议至少 %dMB), 浏览器可能启动失败", availMB, minFreeMB)
	} else {
		utils.Debugf("可用内存 %dMB, CPU %.1f%%", availMB, status.CPUUsage)
	}
	return status
}
