package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责图片目录的只读探测与派生图写入。所有路径均为绝对路径且位于 Root 之下。
type Store interface {
	// Root 返回规范化后的图片根目录。
	Root() string

	// Stat 返回常规文件的快照；不存在或不是常规文件时返回 ErrNotFound。
	Stat(ctx context.Context, path string) (*Stat, error)

	// Probe 同时探测派生图与原图，只读且可并发调用。
	Probe(ctx context.Context, sourcePath, derivativePath string) (Resolution, error)

	// Open 打开一个已探测到的文件用于流式输出。
	Open(ctx context.Context, stat Stat) (*ReadResult, error)

	// Create 在目标文件旁创建临时文件；Commit 时 rename 到目标路径，失败时 Abort 清理。
	Create(ctx context.Context, path string) (*PendingFile, error)
}

// Stat 是单个文件在某一时刻的快照，创建后不再修改。
type Stat struct {
	Path    string    `json:"path"`
	Size    uint64    `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Resolution 描述一次解析结果：Handled 表示派生图已就绪，Source 表示原图存在。
type Resolution struct {
	Source  *Stat
	Handled *Stat
}

// Outcome 是 Resolution 对应的三态结果。
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeHit
	OutcomeMiss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	default:
		return "not_found"
	}
}

// Outcome 派生图优先；仅有原图时需要构建；两者皆无则 404。
func (r Resolution) Outcome() Outcome {
	switch {
	case r.Handled != nil:
		return OutcomeHit
	case r.Source != nil:
		return OutcomeMiss
	default:
		return OutcomeNotFound
	}
}

// ReadResult 组合 Stat 与正文 Reader，便于上层直接流式返回。
type ReadResult struct {
	Stat   Stat
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示文件不存在或不是常规文件。
var ErrNotFound = errors.New("image not found")

// ErrOutsideRoot 表示路径越过了图片根目录。
var ErrOutsideRoot = errors.New("path escapes image root")
