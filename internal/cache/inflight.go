package cache

import (
	"context"
	"sync"
)

// Flights 记录正在构建的派生图：同一缓存键只允许一个 leader 构建，
// 其余请求等待 leader 的完成信号。互斥锁只保护 map 的插入与删除，不覆盖构建本身。
type Flights struct {
	mu      sync.Mutex
	flights map[string]*Flight
}

// Flight 是单个缓存键的一次性完成信号。
type Flight struct {
	done chan struct{}
	err  error
}

// NewFlights 创建空的 in-flight 表。
func NewFlights() *Flights {
	return &Flights{flights: make(map[string]*Flight)}
}

// Join 返回 key 对应的 Flight；第二个返回值为 true 时调用方是 leader，必须调用 Finish。
func (f *Flights) Join(key string) (*Flight, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.flights[key]; ok {
		return existing, false
	}
	flight := &Flight{done: make(chan struct{})}
	f.flights[key] = flight
	return flight, true
}

// Finish 由 leader 调用：记录结果、唤醒等待者并移除 key。
func (f *Flights) Finish(key string, flight *Flight, err error) {
	f.mu.Lock()
	if current, ok := f.flights[key]; ok && current == flight {
		delete(f.flights, key)
	}
	f.mu.Unlock()

	flight.err = err
	close(flight.done)
}

// Len 返回当前正在构建的键数量。
func (f *Flights) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flights)
}

// Wait 阻塞直到 leader 完成或 ctx 结束，返回 leader 的构建结果。
func (fl *Flight) Wait(ctx context.Context) error {
	select {
	case <-fl.done:
		return fl.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
