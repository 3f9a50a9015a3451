package session

import (
	"sync"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// Session 一个浏览器会话,由单个爬取独占
type Session struct {
	ID      string
	Driver  browser.Driver
	Proxy   *models.ProxyEndpoint
	Profile browser.Profile
	Remote  bool

	display Display
	once    sync.Once
}

// Display 会话关联的虚拟显示名,没有时为空
func (s *Session) Display() string {
	if s.display == nil {
		return ""
	}
	return s.display.Name()
}

// Release 先退出浏览器再停止虚拟显示
// 两步都会执行,失败只记录日志;重复调用无副作用
func (s *Session) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.Driver != nil {
			if err := s.Driver.Quit(); err != nil {
				utils.Warnf("会话 %s 退出浏览器失败: %v", s.ID, err)
			}
		}
		if s.display != nil {
			if err := s.display.Stop(); err != nil {
				utils.Warnf("会话 %s 停止虚拟显示失败: %v", s.ID, err)
			}
		}
		utils.Debugf("会话 %s 已释放", s.ID)
	})
}
