package capture

import (
	"fmt"
	"image"
)

// Frame 为一次捕获得到的原始像素缓冲：RGBA 四通道、行优先、左上角原点，
// 行跨度固定为 Width*4。
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// FrameFromRGBA 将后端返回的图像重新打包为紧凑的 Frame。
// 面积为 0 的图像视为捕获失败。
func FrameFromRGBA(img *image.RGBA) (*Frame, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: backend returned no image", ErrCaptureFailed)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty frame %dx%d", ErrCaptureFailed, w, h)
	}
	rowLen := w * 4
	if len(img.Pix) < (h-1)*img.Stride+rowLen {
		return nil, fmt.Errorf("%w: short pixel buffer", ErrCaptureFailed)
	}

	pix := make([]byte, rowLen*h)
	if img.Stride == rowLen && img.PixOffset(b.Min.X, b.Min.Y) == 0 {
		copy(pix, img.Pix[:rowLen*h])
	} else {
		for y := 0; y < h; y++ {
			off := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[y*rowLen:(y+1)*rowLen], img.Pix[off:off+rowLen])
		}
	}
	return &Frame{Width: w, Height: h, Pix: pix}, nil
}

// RGBA 返回共享底层缓冲的图像视图
func (f *Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
