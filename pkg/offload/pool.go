// Package offload 提供了一个有界工作池，用于把 CPU 密集或同步阻塞的调用
// （向量化、PDF 栅格化、视觉提取）移出网络 I/O 协程。
package offload

import (
	"context"

	"github.com/panjf2000/ants/v2"
)

// Task 是可被提交到池中的一次调用。
type Task func() error

// Future 表示一次已提交调用的挂起结果，可通过 Wait 等待完成。
type Future struct {
	done chan struct{}
	err  error
}

// Wait 阻塞等待任务完成或上下文取消，返回任务的错误。
// 上下文取消只放弃等待，已在池中执行的任务不会被中断。
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool 是基于 ants 的有界工作池。
type Pool struct {
	inner *ants.Pool
}

// NewPool 创建一个容量为 size 的工作池。
func NewPool(size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	inner, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Pool{inner: inner}, nil
}

// Submit 将任务提交到池中并立即返回 Future。池满时提交会等待空闲 worker。
func (p *Pool) Submit(task Task) *Future {
	f := &Future{done: make(chan struct{})}
	if err := p.inner.Submit(func() {
		f.err = task()
		close(f.done)
	}); err != nil {
		f.err = err
		close(f.done)
	}
	return f
}

// Do 提交任务并同步等待其结果，是 Submit+Wait 的便捷形式。
func (p *Pool) Do(ctx context.Context, task Task) error {
	return p.Submit(task).Wait(ctx)
}

// Release 关闭池并回收全部 worker。
func (p *Pool) Release() {
	p.inner.Release()
}
