package proxy

import (
	"encoding/base64"
	"strings"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/google/uuid"
)

// TokenFunc 生成会话令牌
type TokenFunc func() string

// RandomToken 8位大写随机令牌
func RandomToken() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:8])
}

// FormatCredentials 按提供商格式拼接认证串
//
//	普通:              user:pass
//	luminati(固定会话):  user-session-TOKEN:pass
//	proxymesh(固定会话): user:TOKEN:pass
func FormatCredentials(provider string, cred models.ProxyCredentials, token TokenFunc) string {
	if !cred.PinSession {
		return cred.Username + ":" + cred.Password
	}
	if token == nil {
		token = RandomToken
	}
	switch provider {
	case models.ProviderLuminati:
		return cred.Username + "-session-" + token() + ":" + cred.Password
	case models.ProviderProxyMesh:
		return cred.Username + ":" + token() + ":" + cred.Password
	default:
		return cred.Username + ":" + cred.Password
	}
}

// EncodeCredentials 返回 base64 编码的认证令牌,写入浏览器首选项
func EncodeCredentials(provider string, cred models.ProxyCredentials, token TokenFunc) string {
	return base64.StdEncoding.EncodeToString([]byte(FormatCredentials(provider, cred, token)))
}

// DecodeCredentials 将令牌还原为用户名和密码,按最后一个冒号拆分
func DecodeCredentials(encoded string) (user, pass string, err error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", err
	}
	s := string(raw)
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, "", nil
	}
	return s[:i], s[i+1:], nil
}
