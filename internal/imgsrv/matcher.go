package imgsrv

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/any-hub/any-image/internal/derivative"
)

// Matcher 判断一个请求是否属于图片处理路由：
// GET/HEAD、路径形如 /<prefix>/<name>.<ext>、查询串至少带一个非空的 keep/rotate/size。
type Matcher struct {
	pattern *regexp.Regexp
}

// Match 是命中路由后的请求视图，Path 保持未解码的原始路径。
type Match struct {
	Path  string
	Query url.Values
}

// NewMatcher 按 URL 前缀与扩展名白名单编译路由正则。
func NewMatcher(prefixes, exts []string) (*Matcher, error) {
	if len(prefixes) == 0 {
		return nil, errors.New("at least one url prefix is required")
	}
	if len(exts) == 0 {
		return nil, errors.New("at least one extension is required")
	}
	expr := "^/(" + quoteAll(prefixes) + ")/(.+)\\.(" + quoteAll(exts) + ")$"
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Matcher{pattern: pattern}, nil
}

func quoteAll(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, regexp.QuoteMeta(item))
	}
	return strings.Join(quoted, "|")
}

// Match 不命中时返回 false，调用方应交给后续路由处理。
func (m *Matcher) Match(method, path, rawQuery string) (Match, bool) {
	if method != http.MethodGet && method != http.MethodHead {
		return Match{}, false
	}
	if !m.pattern.MatchString(path) {
		return Match{}, false
	}
	// 解析出错时仍使用已解析出的部分
	query, _ := url.ParseQuery(rawQuery)
	if !hasTransformParam(query) {
		return Match{}, false
	}
	return Match{Path: path, Query: query}, true
}

func hasTransformParam(query url.Values) bool {
	for _, key := range []string{derivative.ParamKeep, derivative.ParamRotate, derivative.ParamSize} {
		if query.Get(key) != "" {
			return true
		}
	}
	return false
}
