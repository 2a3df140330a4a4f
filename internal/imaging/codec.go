package imaging

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"
	svg "github.com/h2non/go-is-svg"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// sniffLen 覆盖 filetype 需要的文件头长度，同时足以识别大多数 SVG。
const sniffLen = 512

type encodeFunc func(io.Writer, image.Image) error

// Probe 只读取文件头与图片配置，不解码像素。
func (e *Engine) Probe(path string) (Dimensions, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dimensions{}, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, sniffLen)
	mime, err := sniff(br)
	if err != nil {
		return Dimensions{}, err
	}

	var cfg image.Config
	switch mime {
	case "image/bmp":
		cfg, err = bmp.DecodeConfig(br)
	case "image/webp":
		cfg, err = webp.DecodeConfig(br)
	case "image/tiff":
		cfg, err = tiff.DecodeConfig(br)
	case "image/jpeg":
		cfg, err = jpeg.DecodeConfig(br)
	case "image/gif":
		cfg, err = gif.DecodeConfig(br)
	case "image/png":
		cfg, err = png.DecodeConfig(br)
	default:
		return Dimensions{}, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	if err != nil {
		return Dimensions{}, fmt.Errorf("read image config: %w", err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// sniff 通过文件头判断格式：SVG 单独拒绝，其余交给 filetype。
func sniff(br *bufio.Reader) (string, error) {
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("read image head: %w", err)
	}
	if len(head) == 0 {
		return "", ErrNotImage
	}
	if svg.IsSVG(head) {
		return "", ErrVectorImage
	}
	if !filetype.IsImage(head) {
		return "", ErrNotImage
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return kind.MIME.Value, nil
}

// decode 按 filetype 识别出的 MIME 选择解码器。
func decode(br *bufio.Reader) (image.Image, error) {
	mime, err := sniff(br)
	if err != nil {
		return nil, err
	}

	var img image.Image
	switch mime {
	case "image/bmp":
		img, err = bmp.Decode(br)
	case "image/webp":
		img, err = webp.Decode(br)
	case "image/tiff":
		img, err = tiff.Decode(br)
	case "image/jpeg":
		img, err = jpeg.Decode(br)
	case "image/gif":
		img, err = gif.Decode(br)
	case "image/png":
		img, err = png.Decode(br)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// encoderFor 按输出扩展名选择编码器；webp/ico 没有纯 Go 编码器。
func (e *Engine) encoderFor(format string) (encodeFunc, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		return enc.Encode, nil
	case "jpg", "jpeg":
		quality := e.jpegQuality
		return func(w io.Writer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		}, nil
	case "gif":
		return func(w io.Writer, img image.Image) error {
			return gif.Encode(w, img, nil)
		}, nil
	case "bmp":
		return bmp.Encode, nil
	case "tif", "tiff":
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// CanEncode 报告是否能输出该扩展名。
func (e *Engine) CanEncode(format string) bool {
	_, err := e.encoderFor(format)
	return err == nil
}

// SupportsOutput 与 CanEncode 相同，但不依赖具体的 Engine 配置，供配置校验使用。
func SupportsOutput(format string) bool {
	var e Engine
	return e.CanEncode(format)
}
