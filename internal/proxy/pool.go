package proxy

import (
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// DefaultTorAddress 本地 tor SOCKS 端口
const DefaultTorAddress = "127.0.0.1:9050"

// Pool 按提供商标签分组的代理端点集合
// 生命周期与一次爬取绑定,由调用方显式传给会话提供者
type Pool struct {
	sets map[string][]models.ProxyEndpoint
	intn func(n int) int
}

// NewPool 创建空代理池
func NewPool() *Pool {
	return &Pool{
		sets: make(map[string][]models.ProxyEndpoint),
		intn: rand.IntN,
	}
}

// WithRand 替换随机数来源
func (p *Pool) WithRand(intn func(n int) int) *Pool {
	p.intn = intn
	return p
}

// Add 添加端点,端点的 Provider 被统一为 tag
func (p *Pool) Add(tag string, endpoints ...models.ProxyEndpoint) {
	for _, ep := range endpoints {
		ep.Provider = tag
		p.sets[tag] = append(p.sets[tag], ep)
	}
}

// AddAddresses 解析并添加 "host:port" 列表,返回成功数量
func (p *Pool) AddAddresses(tag string, addrs []string) int {
	added := 0
	for _, addr := range addrs {
		ep, err := models.ParseProxyEndpoint(tag, addr)
		if err != nil {
			utils.Warnf("跳过无效代理 [%s]: %v", tag, err)
			continue
		}
		p.Add(tag, ep)
		added++
	}
	return added
}

// EnsureDefaults 未配置 tor 时使用本地默认端口
func (p *Pool) EnsureDefaults() {
	if len(p.sets[models.ProviderTor]) == 0 {
		p.AddAddresses(models.ProviderTor, []string{DefaultTorAddress})
	}
}

// Remove 移除端点,用于探测失败后
func (p *Pool) Remove(ep models.ProxyEndpoint) {
	set := p.sets[ep.Provider]
	for i, cur := range set {
		if cur.Host == ep.Host && cur.Port == ep.Port {
			p.sets[ep.Provider] = append(set[:i:i], set[i+1:]...)
			return
		}
	}
}

// Len 标签下的端点数量
func (p *Pool) Len(tag string) int {
	return len(p.sets[tag])
}

// Tags 已知标签(排序)
func (p *Pool) Tags() []string {
	tags := make([]string, 0, len(p.sets))
	for tag, set := range p.sets {
		if len(set) > 0 {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Resolve 选择一个代理端点
// override 非空时原样返回;标签未知或为空集合时返回 ConfigurationError;否则均匀随机选择(可重复)
func (p *Pool) Resolve(tag string, override *models.ProxyEndpoint) (models.ProxyEndpoint, error) {
	if override != nil {
		return *override, nil
	}
	set := p.sets[tag]
	if len(set) == 0 {
		return models.ProxyEndpoint{}, &models.ConfigurationError{
			Field:  "proxy",
			Reason: "未知的代理提供商 " + tag + " (可用: " + joinTags(p.Tags()) + ")",
		}
	}
	return set[p.intn(len(set))], nil
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return "无"
	}
	return strings.Join(tags, ", ")
}
