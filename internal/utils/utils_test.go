package utils

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
)

func TestRedactAuth(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"用户名密码", "alice:secret", "alice:***"},
		{"密码含冒号", "alice:pa:ss", "alice:***"},
		{"没有冒号", "token", "***"},
		{"空值", "", "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactAuth(tt.input); got != tt.want {
				t.Errorf("RedactAuth(%q) = %q, 期望 %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactCredential(t *testing.T) {
	if got := RedactCredential(nil); got != "无凭据" {
		t.Errorf("nil 凭据 = %q", got)
	}
	cred := &models.ProxyCredentials{Username: "bob", Password: "hunter2"}
	if got := RedactCredential(cred); strings.Contains(got, "hunter2") || !strings.HasPrefix(got, "bob:") {
		t.Errorf("RedactCredential = %q", got)
	}
}

func TestRedactMap(t *testing.T) {
	in := map[string]any{
		"executor": "http://grid:7317",
		"credentials": map[string]any{
			"username":    "bob",
			"password":    "hunter2hunter2",
			"pin_session": true,
		},
		"api_token": "abc",
	}
	out := RedactMap(in)

	creds := out["credentials"].(map[string]any)
	if creds["username"] != "bob" || creds["pin_session"] != true {
		t.Errorf("非敏感项不应改变: %v", creds)
	}
	if creds["password"] != "hunt***nter" {
		t.Errorf("长密码 = %v", creds["password"])
	}
	if out["api_token"] != "***" || out["executor"] != "http://grid:7317" {
		t.Errorf("RedactMap = %v", out)
	}
	if in["api_token"] != "abc" {
		t.Error("不应修改原始 map")
	}
}

func TestSelectorValidator(t *testing.T) {
	tests := []struct {
		name      string
		xpath     map[string]string
		wantField string
	}{
		{"全部合法", map[string]string{
			models.SelectorLink: "//a[@class='listing']/@href",
			models.SelectorNext: `//a[contains(text(), "Next")]`,
		}, ""},
		{"括号不匹配", map[string]string{
			models.SelectorLink: "//a[@class='listing'",
		}, "xpath." + models.SelectorLink},
		{"空选择器", map[string]string{
			models.SelectorNext: "",
		}, "xpath." + models.SelectorNext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelectors(&models.CrawlConfig{XPath: tt.xpath})
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("不应报错: %v", err)
				}
				return
			}
			var cfgErr *models.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("期望 ConfigurationError, 得到 %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %s, 期望 %s", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestReporter(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(dir)

	report := models.CrawlReport{
		TaskID:   "task-1",
		Site:     "example",
		Stats:    models.CrawlStats{Pages: 3, Records: 6, EndReason: "pagination_end"},
		Config:   models.CrawlConfig{MainURL: "https://example.com", Auth: "alice:secret"},
		Finished: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	path, err := r.GenerateReport(report)
	if err != nil {
		t.Fatalf("GenerateReport() 错误: %v", err)
	}
	if path != r.ReportPath("task-1") {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("报告中不应出现密码")
	}
	var got models.CrawlReport
	if err := got.FromJSON(data); err != nil {
		t.Fatalf("解析报告失败: %v", err)
	}
	if got.Stats.Records != 6 || got.Config.Auth != "alice:***" {
		t.Errorf("报告内容 = %+v", got)
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBarTo(&buf, -1, "提取记录")
	for i := 0; i < 3; i++ {
		if err := bar.Add(1); err != nil {
			t.Fatalf("Add() 错误: %v", err)
		}
	}
	if n := bar.State().CurrentNum; n != 3 {
		t.Errorf("计数 = %d, 期望 3", n)
	}
}
