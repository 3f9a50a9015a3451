package models

import (
	"encoding/json"
	"time"
)

// PageCursor 分页游标
type PageCursor struct {
	URL   string `json:"url"`
	Index int    `json:"index"` // 从0开始
	Done  bool   `json:"done"`
}

// Advance 移动到下一页
func (c *PageCursor) Advance(url string) {
	c.URL = url
	c.Index++
}

// CrawlStats 爬取统计
type CrawlStats struct {
	Pages        int       `json:"pages"`         // 已处理列表页数
	Links        int       `json:"links"`         // 收集到的详情链接数
	Records      int       `json:"records"`       // 已输出记录数
	NullFields   int       `json:"null_fields"`   // 空字段总数
	SkippedLinks int       `json:"skipped_links"` // 空 href
	SinkErrors   int       `json:"sink_errors"`
	State        string    `json:"state"`
	EndReason    string    `json:"end_reason"`
	LastURL      string    `json:"last_url,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Duration     float64   `json:"duration"` // 秒
}

// CrawlReport 爬取报告
type CrawlReport struct {
	TaskID   string      `json:"task_id"`
	Site     string      `json:"site"`
	Outfile  string      `json:"outfile"`
	Proxy    string      `json:"proxy,omitempty"`
	Remote   bool        `json:"remote"`
	Stats    CrawlStats  `json:"stats"`
	Error    string      `json:"error,omitempty"`
	Config   CrawlConfig `json:"config"` // 已脱敏
	Finished time.Time   `json:"finished"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
