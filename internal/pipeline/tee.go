package pipeline

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const chunkSize = 32 * 1024

// errStalled 表示消费者在 stall 期限内没有腾出队列空间，已被放弃。
var errStalled = errors.New("consumer stalled")

// branch 是 tee 的一个消费者：独立 goroutine、独立有界队列、独立错误。
// 写入失败后继续排空队列；队列长时间写满时被放弃，生产者不再等待它。
type branch struct {
	dst   io.Writer
	queue chan []byte
	dead  atomic.Bool

	mu  sync.Mutex
	err error

	done      chan struct{}
	abandoned chan struct{}
}

func newBranch(dst io.Writer, depth int) *branch {
	if depth < 1 {
		depth = 1
	}
	return &branch{
		dst:       dst,
		queue:     make(chan []byte, depth),
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
	}
}

func (b *branch) run() {
	defer close(b.done)
	for chunk := range b.queue {
		if b.dead.Load() {
			continue
		}
		if _, err := b.dst.Write(chunk); err != nil {
			b.fail(err)
		}
	}
}

// fail 只保留第一个错误。
func (b *branch) fail(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
	b.dead.Store(true)
}

// Err 返回该消费者的错误，nil 表示收到了全部内容。
func (b *branch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// offer 把 chunk 交给消费者；队列在 stall 内一直是满的就放弃该消费者。
func (b *branch) offer(chunk []byte, stall time.Duration) {
	select {
	case b.queue <- chunk:
		return
	default:
	}

	timer := time.NewTimer(stall)
	defer timer.Stop()
	select {
	case b.queue <- chunk:
	case <-timer.C:
		b.fail(errStalled)
		close(b.abandoned)
	}
}

// wait 等待消费者排空队列；被放弃的消费者可能仍阻塞在 Write 中，不再等待。
func (b *branch) wait() error {
	select {
	case <-b.done:
	case <-b.abandoned:
	}
	return nil
}

// tee 把 src 的内容复制给全部 branch，返回读取的字节数与 src 的错误。
// 所有 branch 都失败后提前停止读取。
func tee(src io.Reader, stall time.Duration, branches ...*branch) (int64, error) {
	for _, b := range branches {
		go b.run()
	}

	total, srcErr := pump(src, stall, branches)

	var g errgroup.Group
	for _, b := range branches {
		close(b.queue)
		g.Go(b.wait)
	}
	// branch 错误各自记录，通过 Err 读取
	_ = g.Wait()
	return total, srcErr
}

func pump(src io.Reader, stall time.Duration, branches []*branch) (int64, error) {
	var total int64
	for {
		if allDead(branches) {
			return total, nil
		}

		buf := make([]byte, chunkSize)
		n, err := src.Read(buf)
		if n > 0 {
			total += int64(n)
			chunk := buf[:n]
			for _, b := range branches {
				if !b.dead.Load() {
					b.offer(chunk, stall)
				}
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func allDead(branches []*branch) bool {
	for _, b := range branches {
		if !b.dead.Load() {
			return false
		}
	}
	return true
}
