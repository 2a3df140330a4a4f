package derivative

import (
	"path/filepath"
	"strings"
)

// UnknownContentType 用于不在映射表中的扩展名。
const UnknownContentType = "application/octet-stream"

var mimeTypes = map[string]string{
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

// ContentType 按扩展名返回 MIME 类型。
func ContentType(path string) string {
	if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return UnknownContentType
}
