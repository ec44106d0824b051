package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Codec 是通用 JPEG 编解码器，第一遍编码用它完成色彩空间转换与量化。
type Codec interface {
	Encode(img image.Image, quality int) ([]byte, error)
	Decode(data []byte) (image.Image, error)
}

// StdCodec 基于标准库 image/jpeg
type StdCodec struct{}

func (StdCodec) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	b := img.Bounds()
	buf.Grow(b.Dx() * b.Dy() / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (StdCodec) Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}
