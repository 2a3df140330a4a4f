package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// NewStore 以 root 为图片根目录构建磁盘存储，整站复用一份实例。
func NewStore(root string) (Store, error) {
	if root == "" {
		return nil, errors.New("image root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve image root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat image root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("image root is not a directory: %s", abs)
	}

	return &fileStore{root: abs}, nil
}

// fileStore 只在 Commit 的 rename 阶段修改目录，读路径完全无锁。
type fileStore struct {
	root string
}

func (s *fileStore) Root() string {
	return s.root
}

func (s *fileStore) Stat(ctx context.Context, path string) (*Stat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !withinRoot(s.root, path) {
		return nil, ErrOutsideRoot
	}

	info, err := os.Stat(path)
	if err != nil {
		if statAbsent(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	return &Stat{
		Path:    path,
		Size:    uint64(info.Size()),
		ModTime: info.ModTime(),
	}, nil
}

func (s *fileStore) Probe(ctx context.Context, sourcePath, derivativePath string) (Resolution, error) {
	var res Resolution

	handled, err := s.Stat(ctx, derivativePath)
	switch {
	case err == nil:
		res.Handled = handled
	case !isAbsent(err):
		return res, err
	}

	source, err := s.Stat(ctx, sourcePath)
	switch {
	case err == nil:
		res.Source = source
	case !isAbsent(err):
		return res, err
	}

	return res, nil
}

func (s *fileStore) Open(ctx context.Context, stat Stat) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !withinRoot(s.root, stat.Path) {
		return nil, ErrOutsideRoot
	}

	f, err := os.Open(stat.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ReadResult{Stat: stat, Reader: f}, nil
}

func (s *fileStore) Create(ctx context.Context, path string) (*PendingFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !withinRoot(s.root, path) || path == s.root {
		return nil, ErrOutsideRoot
	}

	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &PendingFile{target: path, file: tempFile}, nil
}

// PendingFile 是尚未落盘的派生图：写入临时文件，成功后原子 rename 到目标路径。
// 并发写同一派生图时各自使用独立临时文件，目标路径上只会出现完整内容。
type PendingFile struct {
	target string
	file   *os.File

	mu      sync.Mutex
	written int64
	done    bool
}

// Path 返回最终目标路径。
func (p *PendingFile) Path() string {
	return p.target
}

func (p *PendingFile) Write(b []byte) (int, error) {
	n, err := p.file.Write(b)
	p.mu.Lock()
	p.written += int64(n)
	p.mu.Unlock()
	return n, err
}

// Written 返回已写入临时文件的字节数。
func (p *PendingFile) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Commit 关闭临时文件并 rename 到目标路径，返回落盘后的快照。
func (p *PendingFile) Commit() (*Stat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil, errors.New("pending file already finished")
	}
	p.done = true

	tempName := p.file.Name()
	if err := p.file.Close(); err != nil {
		os.Remove(tempName)
		return nil, err
	}
	if err := os.Rename(tempName, p.target); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	info, err := os.Stat(p.target)
	if err != nil {
		return nil, err
	}
	return &Stat{
		Path:    p.target,
		Size:    uint64(info.Size()),
		ModTime: info.ModTime(),
	}, nil
}

// Abort 丢弃临时文件，目标路径保持不变。重复调用无副作用。
func (p *PendingFile) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	tempName := p.file.Name()
	p.file.Close()
	os.Remove(tempName)
}

// statAbsent 把路径中某段是普通文件或路径过长的情况视同不存在。
func statAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.ENAMETOOLONG)
}

func isAbsent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrOutsideRoot)
}
