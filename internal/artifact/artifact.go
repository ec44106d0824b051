package artifact

import (
	"screencapture/internal/capture"
	"screencapture/internal/encode"
)

// Image 为编码后的 JPEG 字节与其像素尺寸
type Image struct {
	Data   []byte `json:"-" msgpack:"data"`
	Width  int    `json:"w" msgpack:"w"`
	Height int    `json:"h" msgpack:"h"`
}

// Artifact 为一次捕获的最终结果：来源元数据 + 原图 + 缩略图。组装后不再修改。
type Artifact struct {
	Kind      capture.Kind `json:"kind" msgpack:"kind"`
	ID        uint32       `json:"id" msgpack:"id"`
	Name      string       `json:"name" msgpack:"name"`
	X         int32        `json:"x" msgpack:"x"`
	Y         int32        `json:"y" msgpack:"y"`
	W         uint32       `json:"w" msgpack:"w"`
	H         uint32       `json:"h" msgpack:"h"`
	Image     Image        `json:"image" msgpack:"image_bytes"`
	Thumbnail Image        `json:"thumbnail" msgpack:"thumbnail_bytes"`
}

// Assemble 把来源元数据与两段编码结果合成 Artifact。
// W/H 取实际编码的尺寸，保证解码结果与上报尺寸一致。
func Assemble(src capture.Source, pair encode.Pair) Artifact {
	return Artifact{
		Kind:      src.Kind,
		ID:        src.ID,
		Name:      src.Name,
		X:         src.X,
		Y:         src.Y,
		W:         uint32(pair.Full.Width),
		H:         uint32(pair.Full.Height),
		Image:     fromEncoded(pair.Full),
		Thumbnail: fromEncoded(pair.Thumbnail),
	}
}

func fromEncoded(img encode.Image) Image {
	return Image{Data: img.Data, Width: img.Width, Height: img.Height}
}
