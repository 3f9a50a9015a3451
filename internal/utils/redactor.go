package utils

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
)

// SensitiveKeywords 敏感配置项名称关键字
var SensitiveKeywords = []string{
	"authorization",
	"token",
	"secret",
	"password",
	"credential",
	"auth",
}

// IsSensitiveKey 名称是否包含敏感关键字,不区分大小写
func IsSensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range SensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactValue 隐藏敏感值
// 长值保留前4位和后4位,短值完全隐藏
func RedactValue(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// RedactAuth 隐藏 user:pass 中的密码
func RedactAuth(auth string) string {
	if auth == "" {
		return "-"
	}
	user, _, ok := strings.Cut(auth, ":")
	if !ok {
		return "***"
	}
	return user + ":***"
}

// RedactCredential 代理凭据的日志形式
func RedactCredential(cred *models.ProxyCredentials) string {
	if cred == nil || cred.Username == "" {
		return "无凭据"
	}
	if cred.PinSession {
		return fmt.Sprintf("%s:*** 固定会话", cred.Username)
	}
	return cred.Username + ":***"
}

// RedactMap 返回隐藏敏感项后的副本,嵌套 map 递归处理
func RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = RedactMap(val)
		case string:
			if IsSensitiveKey(k) {
				out[k] = RedactValue(val)
			} else {
				out[k] = val
			}
		default:
			if IsSensitiveKey(k) && v != nil {
				out[k] = "***"
			} else {
				out[k] = v
			}
		}
	}
	return out
}
