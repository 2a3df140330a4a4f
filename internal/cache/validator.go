package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ETag 由修改时间（毫秒）与文件大小的十六进制拼接而成。
// 大小与修改时间相同的两个文件会得到相同的 ETag，这是可接受的近似。
func ETag(stat Stat, weak bool) string {
	var b strings.Builder
	if weak {
		b.WriteString("W/")
	}
	b.WriteByte('"')
	b.WriteString(strconv.FormatInt(stat.ModTime.UnixMilli(), 16))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(stat.Size, 16))
	b.WriteByte('"')
	return b.String()
}

// LastModified 返回 HTTP-date 格式的修改时间。
func LastModified(stat Stat) string {
	return stat.ModTime.UTC().Format(http.TimeFormat)
}

// IsNotModified 判断条件请求是否命中：If-None-Match 或 If-Modified-Since 任一匹配即返回 true。
func IsNotModified(ifNoneMatch, ifModifiedSince, etag, lastModified string) bool {
	if ifNoneMatch != "" && etagListMatches(ifNoneMatch, etag) {
		return true
	}
	if ifModifiedSince != "" && notModifiedSince(ifModifiedSince, lastModified) {
		return true
	}
	return false
}

// etagListMatches 使用弱比较：忽略 W/ 前缀，支持逗号分隔列表与 "*"。
func etagListMatches(header, etag string) bool {
	if etag == "" {
		return false
	}
	want := opaqueTag(etag)
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if candidate != "" && opaqueTag(candidate) == want {
			return true
		}
	}
	return false
}

func opaqueTag(tag string) string {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	return strings.Trim(tag, `"`)
}

func notModifiedSince(header, lastModified string) bool {
	if strings.TrimSpace(header) == lastModified {
		return true
	}
	since, err := http.ParseTime(header)
	if err != nil {
		return false
	}
	modified, err := http.ParseTime(lastModified)
	if err != nil {
		return false
	}
	return !modified.Truncate(time.Second).After(since)
}
