package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
)

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	if outputDir == "" {
		outputDir = "reports"
	}
	return &Reporter{outputDir: outputDir}
}

// ReportPath 任务报告的文件路径
func (r *Reporter) ReportPath(taskID string) string {
	return filepath.Join(r.outputDir, "crawl_report_"+taskID+".json")
}

// GenerateReport 写入爬取报告,返回文件路径
func (r *Reporter) GenerateReport(report models.CrawlReport) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	report.Config = report.Config.Redacted()

	path := r.ReportPath(report.TaskID)
	if err := r.saveJSONReport(path, report); err != nil {
		return "", err
	}
	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条,max 为 -1 时显示计数的旋转指示
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return NewProgressBarTo(os.Stderr, max, description)
}

// NewProgressBarTo 输出到指定 writer 的进度条
func NewProgressBarTo(w io.Writer, max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("条"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
