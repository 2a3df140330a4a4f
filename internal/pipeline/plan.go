package pipeline

import (
	"math"

	"github.com/any-hub/any-image/internal/derivative"
	"github.com/any-hub/any-image/internal/imaging"
)

// Plan 根据原图尺寸与变换描述计算最终输出尺寸（旋转前）。
//
//   - 未指定尺寸：保持原尺寸；
//   - 只指定一边：另一边按原比例推算；
//   - 两边都指定且 Keep：在框内取最大的等比尺寸；
//   - 两边都指定且不 Keep：严格使用给定尺寸；
//   - Keep 时不放大，缩放比例上限为 1。
func Plan(native imaging.Dimensions, d derivative.Descriptor) imaging.Dimensions {
	if native.Width <= 0 || native.Height <= 0 || d.Size.IsZero() {
		return native
	}

	nw, nh := float64(native.Width), float64(native.Height)

	if d.HasWidth() && d.HasHeight() && !d.Keep {
		return imaging.Dimensions{Width: d.Size.Width, Height: d.Size.Height}
	}

	var scale float64
	switch {
	case d.HasWidth() && d.HasHeight():
		scale = math.Min(float64(d.Size.Width)/nw, float64(d.Size.Height)/nh)
	case d.HasWidth():
		scale = float64(d.Size.Width) / nw
	default:
		scale = float64(d.Size.Height) / nh
	}
	if d.Keep && scale > 1 {
		scale = 1
	}

	return imaging.Dimensions{
		Width:  atLeastOne(nw * scale),
		Height: atLeastOne(nh * scale),
	}
}

func atLeastOne(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}
