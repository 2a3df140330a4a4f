// Package imaging is the pixel-level capability behind the derivative
// pipeline: probing native dimensions and turning a source stream into an
// encoded, resized and rotated output stream. Everything here is pure Go so the
// server builds with CGO_ENABLED=0.
package imaging

import (
	"errors"
	"io"
	"strings"

	"github.com/nfnt/resize"
)

var (
	// ErrNotImage 表示输入无法识别为栅格图片。
	ErrNotImage = errors.New("input is not a supported raster image")
	// ErrVectorImage 表示输入是 SVG，矢量图不做缩放与旋转。
	ErrVectorImage = errors.New("vector images cannot be transformed")
	// ErrUnsupportedFormat 表示目标扩展名没有可用的编码器。
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Dimensions 是图片的像素尺寸。
type Dimensions struct {
	Width  int
	Height int
}

// Options 是一次变换的最终参数：目标尺寸已由调用方计算好，旋转在缩放之后执行。
type Options struct {
	Width  int
	Height int
	Rotate int
	Format string
}

// Transformer 抽象外部图片处理能力，便于测试时替换。
type Transformer interface {
	Probe(path string) (Dimensions, error)
	Transform(src io.Reader, opts Options) (io.ReadCloser, error)
}

// Config 控制缩放插值算法与 JPEG 质量。
type Config struct {
	Interpolation string
	JPEGQuality   int
}

// Engine 是基于 nfnt/resize 与 golang.org/x/image 的默认实现，无状态可并发使用。
type Engine struct {
	interpolation resize.InterpolationFunction
	jpegQuality   int
}

// New 按配置构建 Engine，未知插值算法回退到 Lanczos3。
func New(cfg Config) *Engine {
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &Engine{
		interpolation: interpolationFor(cfg.Interpolation),
		jpegQuality:   quality,
	}
}

func interpolationFor(name string) resize.InterpolationFunction {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return resize.NearestNeighbor
	case "bilinear":
		return resize.Bilinear
	case "bicubic":
		return resize.Bicubic
	case "mitchellnetravali":
		return resize.MitchellNetravali
	case "lanczos2":
		return resize.Lanczos2
	default:
		return resize.Lanczos3
	}
}
