package proxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
	xproxy "golang.org/x/net/proxy"
)

// DefaultProbeTarget SOCKS 探测时经隧道连接的目标
const DefaultProbeTarget = "example.com:80"

// Probe 代理可达性探测
// HTTP 类代理只检查 TCP 连通,SOCKS5 代理需要经隧道连通目标
type Probe struct {
	Timeout time.Duration
	Target  string
}

// NewProbe 创建探测器
func NewProbe(timeout time.Duration, target string) *Probe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if target == "" {
		target = DefaultProbeTarget
	}
	return &Probe{Timeout: timeout, Target: target}
}

// Check 探测端点
func (p *Probe) Check(ctx context.Context, ep models.ProxyEndpoint) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	base := &net.Dialer{Timeout: p.Timeout}
	var conn net.Conn
	var err error

	if ep.IsSOCKS() {
		var auth *xproxy.Auth
		if ep.Credentials != nil && ep.Credentials.Username != "" {
			auth = &xproxy.Auth{User: ep.Credentials.Username, Password: ep.Credentials.Password}
		}
		dialer, derr := xproxy.SOCKS5("tcp", ep.Address(), auth, base)
		if derr != nil {
			return fmt.Errorf("创建SOCKS5拨号器失败: %w", derr)
		}
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			conn, err = cd.DialContext(ctx, "tcp", p.Target)
		} else {
			conn, err = dialer.Dial("tcp", p.Target)
		}
	} else {
		conn, err = base.DialContext(ctx, "tcp", ep.Address())
	}
	if err != nil {
		return fmt.Errorf("代理不可达 %s: %w", ep, err)
	}
	return conn.Close()
}
