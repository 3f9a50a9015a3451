package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPaginationEnd 未找到下一页控件,分页正常结束
var ErrPaginationEnd = errors.New("分页结束: 未找到下一页控件")

// ConfigurationError 配置错误,在爬取开始前返回
type ConfigurationError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	msg := "配置错误"
	if e.Field != "" {
		msg += " [" + e.Field + "]"
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// SessionAcquisitionError 无法获取可用的浏览器会话
type SessionAcquisitionError struct {
	Attempts []error // 每次远程尝试的错误
	Cause    error   // 最终失败原因
}

func (e *SessionAcquisitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "获取浏览器会话失败 (尝试 %d 次)", len(e.Attempts))
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	for i, err := range e.Attempts {
		fmt.Fprintf(&b, "; 第%d次: %v", i+1, err)
	}
	return b.String()
}

func (e *SessionAcquisitionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return append(errs, e.Attempts...)
}

// NavigationTimeoutError 顶层页面加载超时,爬取中止
type NavigationTimeoutError struct {
	URL     string
	Phase   string // login, main, listing, detail
	Timeout time.Duration
	Cause   error
}

func (e *NavigationTimeoutError) Error() string {
	msg := fmt.Sprintf("页面加载超时 [%s] %s", e.Phase, e.URL)
	if e.Timeout > 0 {
		msg += fmt.Sprintf(" (超时 %s)", e.Timeout)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NavigationTimeoutError) Unwrap() error {
	return e.Cause
}

// ElementNotFoundError 页面上未找到元素
type ElementNotFoundError struct {
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return "未找到元素: " + e.Selector
}

// IsElementNotFound 判断是否为元素缺失
func IsElementNotFound(err error) bool {
	var target *ElementNotFoundError
	return errors.As(err, &target)
}

// IsNavigationTimeout 判断是否为导航超时
func IsNavigationTimeout(err error) bool {
	var target *NavigationTimeoutError
	return errors.As(err, &target)
}
