package utils

import (
	"sort"

	"github.com/antchfx/xpath"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
)

// SelectorValidator 检查站点配置中的 XPath 语法
// 只做编译检查,选择器能否匹配页面元素要到运行时才知道
type SelectorValidator struct {
	cache map[string]error
}

// NewSelectorValidator 创建验证器
func NewSelectorValidator() *SelectorValidator {
	return &SelectorValidator{cache: make(map[string]error)}
}

// ValidateExpr 编译单个表达式
func (sv *SelectorValidator) ValidateExpr(expr string) error {
	if err, ok := sv.cache[expr]; ok {
		return err
	}
	_, err := xpath.Compile(expr)
	sv.cache[expr] = err
	return err
}

// Validate 按键名顺序检查所有选择器,返回第一个错误
func (sv *SelectorValidator) Validate(cfg *models.CrawlConfig) error {
	keys := make([]string, 0, len(cfg.XPath))
	for k := range cfg.XPath {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expr := cfg.XPath[key]
		if expr == "" {
			return &models.ConfigurationError{Field: "xpath." + key, Reason: "选择器为空"}
		}
		if err := sv.ValidateExpr(expr); err != nil {
			return &models.ConfigurationError{
				Field:  "xpath." + key,
				Reason: "XPath 语法错误: " + expr,
				Cause:  err,
			}
		}
	}
	return nil
}

// ValidateSelectors 使用新验证器检查配置
func ValidateSelectors(cfg *models.CrawlConfig) error {
	return NewSelectorValidator().Validate(cfg)
}
