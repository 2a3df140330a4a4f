// Package pipeline turns a source image plus a transform descriptor into an
// encoded derivative stream that is written to the HTTP response and to the
// on-disk cache at the same time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-image/internal/cache"
	"github.com/any-hub/any-image/internal/derivative"
	"github.com/any-hub/any-image/internal/imaging"
)

// Recorder 接收构建耗时与缓存写入失败事件，nil 时忽略。
type Recorder interface {
	ObserveTransform(elapsed time.Duration, err error)
	CacheWriteFailed()
}

// Options 控制 tee 的队列深度与日志。StallTimeout 是单个消费者队列保持写满的最长时间，
// 超过后该消费者被放弃，其余消费者继续。
type Options struct {
	QueueDepth   int
	StallTimeout time.Duration
	Logger       logrus.FieldLogger
	Recorder     Recorder
}

const (
	defaultQueueDepth   = 8
	defaultStallTimeout = 10 * time.Second
)

// Pipeline 组合存储与图片处理能力，可被多个请求并发使用。
type Pipeline struct {
	store       cache.Store
	transformer imaging.Transformer
	queueDepth  int
	stall       time.Duration
	logger      logrus.FieldLogger
	recorder    Recorder
}

// New 构建 Pipeline。
func New(store cache.Store, transformer imaging.Transformer, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	depth := opts.QueueDepth
	if depth < 1 {
		depth = defaultQueueDepth
	}
	stall := opts.StallTimeout
	if stall <= 0 {
		stall = defaultStallTimeout
	}
	return &Pipeline{
		store:       store,
		transformer: transformer,
		queueDepth:  depth,
		stall:       stall,
		logger:      logger,
		recorder:    opts.Recorder,
	}
}

// Build 是一次已经完成解码、尚未输出任何字节的构建。
// 调用方必须且只能调用一次 Stream 或 Abort。
type Build struct {
	Source     cache.Stat
	Derivative string
	Target     imaging.Dimensions
	Rotate     int

	p       *Pipeline
	src     io.Closer
	out     io.ReadCloser
	pending *cache.PendingFile
	started time.Time
}

// Result 汇总 Stream 的结果，三个错误互相独立。
type Result struct {
	Bytes       int64
	SourceErr   error
	CacheErr    error
	ResponseErr error
	// Cached 非 nil 表示派生图已原子落盘。
	Cached *cache.Stat
}

// CacheOutcome 返回缓存是否写成功，供 in-flight 等待者判断。
func (r Result) CacheOutcome() error {
	switch {
	case r.SourceErr != nil:
		return r.SourceErr
	case r.CacheErr != nil:
		return r.CacheErr
	case r.Cached == nil:
		return errNotCached
	default:
		return nil
	}
}

var errNotCached = errors.New("derivative was not cached")

// Prepare 完成所有可能在响应头提交前失败的步骤：探测尺寸、规划、打开原图、解码。
// 缓存临时文件创建失败只记录日志，此次构建仅输出到响应。
func (p *Pipeline) Prepare(ctx context.Context, source cache.Stat, derivativePath string, d derivative.Descriptor) (*Build, error) {
	started := time.Now()

	dims, err := p.transformer.Probe(source.Path)
	if err != nil {
		p.observe(started, err)
		return nil, fmt.Errorf("probe source: %w", err)
	}
	target := Plan(dims, d)

	rr, err := p.store.Open(ctx, source)
	if err != nil {
		p.observe(started, err)
		return nil, fmt.Errorf("open source: %w", err)
	}

	out, err := p.transformer.Transform(rr.Reader, imaging.Options{
		Width:  target.Width,
		Height: target.Height,
		Rotate: d.Rotate,
		Format: filepath.Ext(derivativePath),
	})
	if err != nil {
		rr.Reader.Close()
		p.observe(started, err)
		return nil, fmt.Errorf("transform source: %w", err)
	}

	pending, err := p.store.Create(ctx, derivativePath)
	if err != nil {
		p.cacheFailed()
		p.logger.WithError(err).WithField("derivative", derivativePath).Warn("derivative cache write disabled")
		pending = nil
	}

	return &Build{
		Source:     source,
		Derivative: derivativePath,
		Target:     target,
		Rotate:     d.Rotate,
		p:          p,
		src:        rr.Reader,
		out:        out,
		pending:    pending,
		started:    started,
	}, nil
}

// Caching 报告此次构建是否同时写入缓存。
func (b *Build) Caching() bool {
	return b.pending != nil
}

// Stream 把编码输出同时写给 w 与缓存临时文件。w 失败（客户端断开）或长时间不读取都不影响缓存；
// 缓存失败只丢弃临时文件，w 继续接收完整内容。编码失败时两者都终止，临时文件被删除。
func (b *Build) Stream(w io.Writer) Result {
	defer b.src.Close()
	defer b.out.Close()

	response := newBranch(w, b.p.queueDepth)
	branches := []*branch{response}
	var cacheBranch *branch
	if b.pending != nil {
		cacheBranch = newBranch(b.pending, b.p.queueDepth)
		branches = append(branches, cacheBranch)
	}

	var res Result
	res.Bytes, res.SourceErr = tee(b.out, b.p.stall, branches...)
	res.ResponseErr = response.Err()

	if b.pending != nil {
		switch {
		case res.SourceErr != nil:
			b.pending.Abort()
		case cacheBranch.Err() != nil:
			b.pending.Abort()
			res.CacheErr = cacheBranch.Err()
		default:
			stat, err := b.pending.Commit()
			if err != nil {
				res.CacheErr = err
			} else {
				res.Cached = stat
			}
		}
		if res.CacheErr != nil {
			b.p.cacheFailed()
			b.p.logger.WithError(res.CacheErr).WithField("derivative", b.Derivative).Warn("derivative cache write failed")
		}
	}

	b.p.observe(b.started, res.SourceErr)
	return res
}

// Abort 放弃尚未输出的构建。
func (b *Build) Abort() {
	b.out.Close()
	b.src.Close()
	if b.pending != nil {
		b.pending.Abort()
	}
}

func (p *Pipeline) observe(started time.Time, err error) {
	if p.recorder != nil {
		p.recorder.ObserveTransform(time.Since(started), err)
	}
}

func (p *Pipeline) cacheFailed() {
	if p.recorder != nil {
		p.recorder.CacheWriteFailed()
	}
}
