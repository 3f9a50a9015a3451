package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/RecoveryAshes/PageCrawl/internal/utils"
	"github.com/shirou/gopsutil/v3/process"
)

// 虚拟显示默认尺寸
const (
	DefaultDisplayWidth  = 1000
	DefaultDisplayHeight = 1000
)

// Display 虚拟显示,生命周期与会话绑定
type Display interface {
	Start(ctx context.Context) error
	Name() string
	Stop() error
}

// DisplayFactory 创建指定尺寸的虚拟显示
type DisplayFactory func(width, height int) Display

// XvfbDisplay 基于 Xvfb 进程的虚拟显示
type XvfbDisplay struct {
	Width  int
	Height int
	Bin    string

	mu      sync.Mutex
	cmd     *exec.Cmd
	number  int
	exited  chan error
	stopped bool
}

// NewXvfbDisplay 创建 Xvfb 显示
func NewXvfbDisplay(width, height int) Display {
	return &XvfbDisplay{Width: width, Height: height, Bin: "Xvfb"}
}

// Start 启动 Xvfb 并等待套接字就绪
func (d *XvfbDisplay) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		return nil
	}
	bin, err := exec.LookPath(d.Bin)
	if err != nil {
		return fmt.Errorf("未找到 %s: %w", d.Bin, err)
	}

	number := freeDisplayNumber(99)
	screen := fmt.Sprintf("%dx%dx24", d.Width, d.Height)
	cmd := exec.Command(bin, ":"+strconv.Itoa(number), "-screen", "0", screen, "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动 Xvfb 失败: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	socket := fmt.Sprintf("/tmp/.X11-unix/X%d", number)
	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(socket); err == nil {
			break
		}
		select {
		case err := <-exited:
			return fmt.Errorf("Xvfb 意外退出: %v", err)
		case <-deadline.C:
			_ = cmd.Process.Kill()
			<-exited
			return fmt.Errorf("等待 Xvfb 就绪超时 (:%d)", number)
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-exited
			return ctx.Err()
		case <-ticker.C:
		}
	}

	d.cmd = cmd
	d.number = number
	d.exited = exited
	utils.Debugf("虚拟显示已启动 :%d (%s)", number, screen)
	return nil
}

// Name 返回 DISPLAY 值
func (d *XvfbDisplay) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return ""
	}
	return ":" + strconv.Itoa(d.number)
}

// Stop 终止 Xvfb 及其子进程,可重复调用
func (d *XvfbDisplay) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil || d.stopped {
		return nil
	}
	d.stopped = true

	proc, err := process.NewProcess(int32(d.cmd.Process.Pid))
	if err == nil {
		if children, err := proc.Children(); err == nil {
			for _, child := range children {
				_ = child.Terminate()
			}
		}
		err = proc.Terminate()
	}
	if err != nil {
		utils.Debugf("终止 Xvfb 失败,直接结束进程: %v", err)
		_ = d.cmd.Process.Kill()
	}

	select {
	case <-d.exited:
	case <-time.After(3 * time.Second):
		if err := d.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("结束 Xvfb 失败: %w", err)
		}
		<-d.exited
	}
	utils.Debugf("虚拟显示已停止 :%d", d.number)
	return nil
}

// freeDisplayNumber 从 start 开始查找未被锁定的显示号
func freeDisplayNumber(start int) int {
	for n := start; n < start+100; n++ {
		if _, err := os.Stat(fmt.Sprintf("/tmp/.X%d-lock", n)); os.IsNotExist(err) {
			return n
		}
	}
	return start
}
