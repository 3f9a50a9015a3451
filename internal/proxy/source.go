package proxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// Source 代理来源,返回按提供商标签分组的 "host:port" 列表
type Source interface {
	Fetch(ctx context.Context) (map[string][]string, error)
}

// StaticSource 配置文件中直接给出的代理列表
type StaticSource map[string][]string

// Fetch 实现 Source
func (s StaticSource) Fetch(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(s))
	for tag, addrs := range s {
		out[tag] = append([]string(nil), addrs...)
	}
	return out, nil
}

// hostPortPattern 匹配页面中的 host:port
var hostPortPattern = regexp.MustCompile(`\b((?:\d{1,3}\.){3}\d{1,3}|[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}):(\d{2,5})\b`)

// ListSource 从公开代理列表页面抓取地址
type ListSource struct {
	Provider  string
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Fetch 抓取页面并提取所有 host:port
func (s *ListSource) Fetch(ctx context.Context) (map[string][]string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := colly.NewCollector(colly.StdlibContext(ctx))
	c.SetClient(&http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: timeout,
	})
	if s.UserAgent != "" {
		c.UserAgent = s.UserAgent
	}

	var (
		addrs    []string
		fetchErr error
	)
	seen := make(map[string]bool)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		body := r.Body
		// gzip 已由 colly 解压
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" && !strings.EqualFold(encoding, "gzip") {
			decoded, err := decompressBody(encoding, body)
			if err != nil {
				// 解压失败时按原始内容处理
				utils.Warnf("解压代理列表失败 [%s] (编码=%s): %v", s.URL, encoding, err)
			} else {
				body = decoded
			}
		}
		for _, addr := range ExtractAddresses(string(body)) {
			if !seen[addr] {
				seen[addr] = true
				addrs = append(addrs, addr)
			}
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("抓取代理列表失败 [%s] (状态码 %d): %w", s.URL, r.StatusCode, err)
	})

	if err := c.Visit(s.URL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("抓取代理列表失败 [%s]: %w", s.URL, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	utils.Infof("从 %s 获取 %d 个 %s 代理", s.URL, len(addrs), s.Provider)
	return map[string][]string{s.Provider: addrs}, nil
}

// ExtractAddresses 提取文本中所有 host:port
func ExtractAddresses(text string) []string {
	matches := hostPortPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1]+":"+m[2])
	}
	return out
}

// decompressBody 根据 Content-Encoding 解压响应体
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "identity":
		return body, nil
	default:
		return nil, fmt.Errorf("不支持的编码: %s", contentEncoding)
	}
}

// Load 依次读取所有来源并填充代理池,单个来源失败只记录警告
func Load(ctx context.Context, pool *Pool, sources ...Source) int {
	total := 0
	for _, src := range sources {
		sets, err := src.Fetch(ctx)
		if err != nil {
			utils.Warnf("代理来源不可用: %v", err)
			continue
		}
		for tag, addrs := range sets {
			total += pool.AddAddresses(tag, addrs)
		}
	}
	pool.EnsureDefaults()
	return total
}
