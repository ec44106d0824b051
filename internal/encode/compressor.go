package encode

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/jpegli"
)

// DefaultQuality 为高效压缩器的默认质量，与 libjpeg 系列压缩器的默认值一致
const DefaultQuality = 75

// Compressor 接收紧凑的 RGB 扫描线（每像素 3 字节，无 alpha）并输出最终 JPEG。
type Compressor interface {
	Compress(rgb []byte, width, height int) ([]byte, error)
}

// JpegliCompressor 使用 jpegli 编码，同等视觉质量下体积明显小于通用编码器。
type JpegliCompressor struct {
	Quality int
}

func (c JpegliCompressor) Compress(rgb []byte, width, height int) ([]byte, error) {
	if err := checkDimensions(width, height); err != nil {
		return nil, err
	}
	if len(rgb) != width*height*3 {
		return nil, fmt.Errorf("rgb buffer is %d bytes, want %d", len(rgb), width*height*3)
	}
	q := c.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
		img.Pix[j] = rgb[i]
		img.Pix[j+1] = rgb[i+1]
		img.Pix[j+2] = rgb[i+2]
		img.Pix[j+3] = 0xff
	}

	var buf bytes.Buffer
	buf.Grow(len(rgb) / 10)
	err := jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
		Quality:           q,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
		ProgressiveLevel:  2,
		OptimizeCoding:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("jpegli: %w", err)
	}
	return buf.Bytes(), nil
}
