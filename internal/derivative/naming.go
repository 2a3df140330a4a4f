package derivative

import (
	"path/filepath"
	"strconv"
	"strings"
)

// keepMarker 追加在保持宽高比的派生图名后。
const keepMarker = "_k"

// NameFor 根据原图路径与描述生成派生图路径（同目录、同扩展名）。
// 追加顺序固定为 keep → rotate → size；改变顺序会让已有缓存全部失效。
func NameFor(sourcePath string, d Descriptor) string {
	dir := filepath.Dir(sourcePath)
	ext := filepath.Ext(sourcePath)
	base := strings.TrimSuffix(filepath.Base(sourcePath), ext)

	var b strings.Builder
	b.WriteString(base)
	if d.Keep {
		b.WriteString(keepMarker)
	}
	if d.Rotate != 0 {
		b.WriteString("_r")
		b.WriteString(strconv.Itoa(d.Rotate))
	}
	if token := sizeToken(d.Size); token != "" {
		b.WriteByte('_')
		b.WriteString(token)
	}
	b.WriteString(ext)

	return filepath.Join(dir, b.String())
}

// LogicalName 返回去掉目录与扩展名后的文件名，用于 Image-Name 头。
func LogicalName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// sizeToken 与 size 参数的写法保持一致：W、xH、WxH。
func sizeToken(s Size) string {
	switch {
	case s.Width > 0 && s.Height > 0:
		return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
	case s.Width > 0:
		return strconv.Itoa(s.Width)
	case s.Height > 0:
		return "x" + strconv.Itoa(s.Height)
	}
	return ""
}
