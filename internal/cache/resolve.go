package cache

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// Resolve 将不可信的请求路径映射到 root 之下的绝对路径，从不失败。
// 所有 ".." 段会被整体移除（而不是单次替换），因此 a/../../b 之类的叠加写法也无法越界。
func Resolve(root, raw string) string {
	rel := SanitizePath(raw)
	if rel == "" {
		return filepath.Clean(root)
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// SanitizePath 返回去掉前后分隔符与遍历段的相对路径（以 / 分隔）。
func SanitizePath(raw string) string {
	p := strings.ReplaceAll(raw, "+", " ")
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}

	p = strings.ReplaceAll(p, "\\", "/")
	p = repeatedSlashes.ReplaceAllString(p, "/")
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")

	segments := strings.Split(p, "/")
	kept := segments[:0]
	for _, seg := range segments {
		switch seg {
		case "", ".", "..":
			continue
		}
		if strings.ContainsRune(seg, 0) {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}

// withinRoot 判断 path 是否位于 root 之内（含 root 本身）。
func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
