package encode

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resampler 缩放像素缓冲
type Resampler interface {
	Resize(img image.Image, width, height int) image.Image
}

// LanczosResampler 使用 3 瓣 Lanczos 滤波，缩小时混叠最少
type LanczosResampler struct{}

func (LanczosResampler) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}
