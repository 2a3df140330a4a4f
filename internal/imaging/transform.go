package imaging

import (
	"bufio"
	"fmt"
	"image"
	"io"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Transform 同步解码源图（解码失败在任何输出之前返回错误），
// 之后在后台 goroutine 中编码并通过管道输出。
func (e *Engine) Transform(src io.Reader, opts Options) (io.ReadCloser, error) {
	encode, err := e.encoderFor(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.Rotate%90 != 0 {
		return nil, fmt.Errorf("rotation must be a multiple of 90, got %d", opts.Rotate)
	}

	img, err := decode(bufio.NewReaderSize(src, sniffLen))
	if err != nil {
		return nil, err
	}

	img = e.scale(img, opts.Width, opts.Height)
	img = Rotate(img, opts.Rotate)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(encode(pw, img))
	}()
	return pr, nil
}

// scale 仅在目标尺寸与原尺寸不同时缩放；0 表示沿用原尺寸。
func (e *Engine) scale(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if width <= 0 {
		width = b.Dx()
	}
	if height <= 0 {
		height = b.Dy()
	}
	if width == b.Dx() && height == b.Dy() {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, e.interpolation)
}

// Rotate 顺时针旋转 90 的整数倍，其他角度原样返回。
func Rotate(img image.Image, degrees int) image.Image {
	deg := ((degrees % 360) + 360) % 360
	if deg == 0 {
		return img
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	minX, minY := float64(b.Min.X), float64(b.Min.Y)

	var (
		dst *image.NRGBA
		m   f64.Aff3
	)
	switch deg {
	case 90:
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		m = f64.Aff3{0, -1, h + minY, 1, 0, -minX}
	case 180:
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		m = f64.Aff3{-1, 0, w + minX, 0, -1, h + minY}
	case 270:
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		m = f64.Aff3{0, 1, -minY, -1, 0, w + minX}
	default:
		return img
	}

	draw.NearestNeighbor.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}
