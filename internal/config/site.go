package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

const (
	// DefaultSiteDir 站点配置目录
	DefaultSiteDir = "config_files"

	// SiteConfigKey 站点配置所在的顶层键
	SiteConfigKey = "scraper_config"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

// SiteLoader 站点配置加载器
// 名称解析为 <dir>/<name>.json,带 .json 后缀或路径分隔符时按文件路径处理
type SiteLoader struct {
	dir string
}

// NewSiteLoader 创建加载器,dir 为空时使用 config_files
func NewSiteLoader(dir string) *SiteLoader {
	if dir == "" {
		dir = DefaultSiteDir
	}
	return &SiteLoader{dir: dir}
}

// ResolvePath 站点名称对应的文件路径
func (sl *SiteLoader) ResolvePath(name string) string {
	if strings.HasSuffix(name, ".json") || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(sl.dir, name+".json")
}

// SiteName 去掉目录和后缀的站点名
func SiteName(name string) string {
	return strings.TrimSuffix(filepath.Base(name), ".json")
}

// Load 读取并解析站点配置,已填充默认值但未校验
func (sl *SiteLoader) Load(name string) (*models.CrawlConfig, error) {
	if name == "" {
		return nil, &models.ConfigurationError{Field: "file", Reason: "未指定站点配置"}
	}
	path := sl.ResolvePath(name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &models.ConfigurationError{Field: "file", Reason: "站点配置不存在: " + path}
		}
		return nil, &models.ConfigurationError{Field: "file", Reason: "无法读取站点配置", Cause: err}
	}
	if info.Size() > MaxConfigFileSize {
		return nil, &models.ConfigurationError{
			Field:  "file",
			Reason: fmt.Sprintf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, &models.ConfigurationError{Field: "file", Reason: "解析站点配置失败: " + path, Cause: err}
	}
	if !v.IsSet(SiteConfigKey) {
		return nil, &models.ConfigurationError{Field: SiteConfigKey, Reason: "缺少顶层键"}
	}

	var cfg models.CrawlConfig
	if err := v.UnmarshalKey(SiteConfigKey, &cfg); err != nil {
		return nil, &models.ConfigurationError{Field: SiteConfigKey, Reason: "配置绑定失败", Cause: err}
	}
	cfg.ApplyDefaults()

	utils.Infof("加载站点配置 %s", path)
	return &cfg, nil
}

// LoadSite 使用默认目录加载
func LoadSite(name string) (*models.CrawlConfig, error) {
	return NewSiteLoader("").Load(name)
}

// Overrides 命令行覆盖项,零值表示不覆盖
type Overrides struct {
	Outfile  string
	Keyword  string
	MaxPages int
}

// Apply 覆盖站点配置
func (o Overrides) Apply(cfg *models.CrawlConfig) {
	if o.Outfile != "" {
		cfg.Outfile = o.Outfile
	}
	if o.Keyword != "" {
		cfg.Keyword = o.Keyword
	}
	if o.MaxPages > 0 {
		cfg.MaxNumOfPages = o.MaxPages
	}
}
