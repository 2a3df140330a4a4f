// Package derivative turns raw query parameters into a canonical transform
// descriptor and derives the on-disk name of the resulting derivative. The
// derivative name doubles as the cache key: two requests that normalise to the
// same descriptor always map to the same file next to the original.
package derivative

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names understood by the image server.
const (
	ParamKeep   = "keep"
	ParamRotate = "rotate"
	ParamSize   = "size"
)

// Size 是请求的目标尺寸，0 表示该边未指定。
type Size struct {
	Width  int
	Height int
}

// IsZero 表示不需要缩放。
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// Descriptor 是一次请求的规范化变换描述，构建后不再修改。
type Descriptor struct {
	Size   Size
	Rotate int
	Keep   bool
}

// HasWidth 表示是否指定了宽度。
func (d Descriptor) HasWidth() bool { return d.Size.Width > 0 }

// HasHeight 表示是否指定了高度。
func (d Descriptor) HasHeight() bool { return d.Size.Height > 0 }

// Normalize 把 query 参数转换为 Descriptor。非法输入一律降级为默认值，从不报错。
func Normalize(query url.Values) Descriptor {
	d := Descriptor{Keep: true}

	if values, ok := query[ParamKeep]; ok {
		raw := ""
		if len(values) > 0 {
			raw = values[0]
		}
		d.Keep = parseKeep(raw)
	}

	d.Size = ParseSize(query.Get(ParamSize))

	if raw := query.Get(ParamRotate); raw != "" {
		d.Rotate = NormalizeRotate(raw)
	}
	return d
}

// NormalizeSize 接收已经结构化的尺寸，负值与 0 视为未指定。
func NormalizeSize(s Size) Size {
	if s.Width < 0 {
		s.Width = 0
	}
	if s.Height < 0 {
		s.Height = 0
	}
	return s
}

// ParseSize 解析 W、xH、WxH 三种写法；仅当恰好两段时才读取高度。
func ParseSize(raw string) Size {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Size{}
	}

	parts := strings.Split(raw, "x")
	var size Size
	if w, ok := leadingInt(parts[0]); ok {
		size.Width = w
	}
	if len(parts) == 2 {
		if h, ok := leadingInt(parts[1]); ok {
			size.Height = h
		}
	}
	return NormalizeSize(size)
}

// NormalizeRotate 按四舍五入到最近的 90 度，再折算到 [0,360)。
// 半数向上取整：45 → 90，-45 → 0。
func NormalizeRotate(raw string) int {
	v, ok := leadingInt(raw)
	if !ok {
		return 0
	}
	quarter := int(math.Floor(float64(v)/90 + 0.5))
	deg := (quarter * 90) % 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// parseKeep 仅把显式的否定写法视为 false，其余取值都保持宽高比。
func parseKeep(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

// leadingInt 读取字符串开头的十进制整数（允许符号），与 "100px" → 100 的宽松写法一致。
func leadingInt(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}
