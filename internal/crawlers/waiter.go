package crawlers

import (
	"context"
	"math/rand/v2"
	"time"
)

// Waiter 在操作之间按 [min,max] 秒随机等待
type Waiter struct {
	min   int
	max   int
	intn  func(n int) int
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter 创建等待器,max 小于 min 时按 min 处理
func NewWaiter(min, max int) *Waiter {
	if max < min {
		max = min
	}
	return &Waiter{min: min, max: max, intn: rand.IntN, sleep: sleepContext}
}

// WithSleep 替换睡眠实现
func (w *Waiter) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Waiter {
	w.sleep = sleep
	return w
}

// Next 下一次等待时长,整数秒
func (w *Waiter) Next() time.Duration {
	n := w.min + w.intn(w.max-w.min+1)
	return time.Duration(n) * time.Second
}

// Delay 随机等待,上下文取消时提前返回
func (w *Waiter) Delay(ctx context.Context) (time.Duration, error) {
	d := w.Next()
	return d, w.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
