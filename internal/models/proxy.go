package models

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// 代理提供商
const (
	ProviderTor       = "tor"
	ProviderLuminati  = "luminati"
	ProviderProxyMesh = "proxymesh"
)

// ProxyCredentials 代理认证信息
type ProxyCredentials struct {
	Username   string `mapstructure:"username" json:"username"`
	Password   string `mapstructure:"password" json:"-"`
	PinSession bool   `mapstructure:"pin_session" json:"pin_session"` // 为每个会话生成随机令牌以固定出口IP
}

// ProxyEndpoint 代理端点
type ProxyEndpoint struct {
	Host        string            `json:"host"`
	Port        int               `json:"port"`
	Provider    string            `json:"provider"`
	Credentials *ProxyCredentials `json:"credentials,omitempty"`
}

// Address 返回 host:port
func (p ProxyEndpoint) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// IsSOCKS tor 走 SOCKS5 隧道
func (p ProxyEndpoint) IsSOCKS() bool {
	return p.Provider == ProviderTor
}

// ServerURL 浏览器代理参数
func (p ProxyEndpoint) ServerURL() string {
	if p.IsSOCKS() {
		return "socks5://" + p.Address()
	}
	return "http://" + p.Address()
}

func (p ProxyEndpoint) String() string {
	return p.Provider + "@" + p.Address()
}

// ParseProxyEndpoint 解析 "host:port" 字符串
func ParseProxyEndpoint(provider, hostport string) (ProxyEndpoint, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(hostport))
	if err != nil {
		return ProxyEndpoint{}, fmt.Errorf("代理地址格式无效 %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return ProxyEndpoint{}, fmt.Errorf("代理端口无效 %q", hostport)
	}
	if host == "" {
		return ProxyEndpoint{}, fmt.Errorf("代理地址缺少主机名 %q", hostport)
	}
	return ProxyEndpoint{Host: host, Port: port, Provider: provider}, nil
}
