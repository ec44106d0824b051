package encode

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"screencapture/internal/capture"
)

const (
	// BaseQuality 为第一遍通用编码的固定质量
	BaseQuality = 95
	// ThumbnailDivisor 缩略图宽高均为原图的 1/8（向下取整）
	ThumbnailDivisor = 8
	// maxDimension 为 libjpeg 系列压缩器允许的最大边长
	maxDimension = 65500
)

var (
	ErrDimension      = errors.New("encode: dimension out of range")
	ErrThumbnailEmpty = errors.New("encode: thumbnail would be empty")
)

// Image 为一段 JPEG 字节及其像素尺寸；尺寸随字节一起携带，调用方无需重新解析。
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// Pair 为同一帧的原图与缩略图
type Pair struct {
	Full      Image
	Thumbnail Image
}

// Failure 是重编码边界上的失败结果，panic 与普通错误都会转成它。
type Failure struct {
	Target  string // full 或 thumbnail
	Stage   string // resize / encode / decode / compress
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("reencode %s: %s: %s", f.Target, f.Stage, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Options 配置 Pipeline；零值字段使用默认实现。
type Options struct {
	BaseQuality      int
	ThumbnailDivisor int
	Codec            Codec
	Compressor       Compressor
	Resampler        Resampler
}

// Pipeline 把原始帧转成原图与缩略图两段 JPEG：
// 通用编码(q95) → 解码 → RGB 扫描线交给高效压缩器。
// Pipeline 本身无状态，可被多个调用并发使用。
type Pipeline struct {
	baseQuality int
	divisor     int
	codec       Codec
	comp        Compressor
	resampler   Resampler
}

func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		baseQuality: opts.BaseQuality,
		divisor:     opts.ThumbnailDivisor,
		codec:       opts.Codec,
		comp:        opts.Compressor,
		resampler:   opts.Resampler,
	}
	if p.baseQuality <= 0 || p.baseQuality > 100 {
		p.baseQuality = BaseQuality
	}
	if p.divisor <= 0 {
		p.divisor = ThumbnailDivisor
	}
	if p.codec == nil {
		p.codec = StdCodec{}
	}
	if p.comp == nil {
		p.comp = JpegliCompressor{Quality: DefaultQuality}
	}
	if p.resampler == nil {
		p.resampler = LanczosResampler{}
	}
	return p
}

// Encode 生成原图与缩略图。缩略图任一边为 0 时整帧失败，不输出退化图像。
func (p *Pipeline) Encode(f *capture.Frame) (Pair, error) {
	if f == nil {
		return Pair{}, &Failure{Target: "full", Stage: "input", Message: "nil frame", Err: ErrDimension}
	}
	tw, th := f.Width/p.divisor, f.Height/p.divisor
	if tw == 0 || th == 0 {
		return Pair{}, &Failure{
			Target:  "thumbnail",
			Stage:   "resize",
			Message: fmt.Sprintf("%dx%d frame yields %dx%d thumbnail", f.Width, f.Height, tw, th),
			Err:     ErrThumbnailEmpty,
		}
	}

	src := f.RGBA()
	full, err := p.reencode("full", src)
	if err != nil {
		return Pair{}, err
	}
	small, err := p.resize(src, tw, th)
	if err != nil {
		return Pair{}, err
	}
	thumb, err := p.reencode("thumbnail", small)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Full: full, Thumbnail: thumb}, nil
}

func (p *Pipeline) resize(img image.Image, w, h int) (out image.Image, err error) {
	defer recoverInto(&err, "thumbnail", "resize")
	out = p.resampler.Resize(img, w, h)
	if out == nil || out.Bounds().Dx() != w || out.Bounds().Dy() != h {
		return nil, &Failure{Target: "thumbnail", Stage: "resize", Message: "resampler returned wrong size", Err: ErrDimension}
	}
	return out, nil
}

func (p *Pipeline) reencode(target string, img image.Image) (out Image, err error) {
	stage := "check"
	defer func() {
		if r := recover(); r != nil {
			err = &Failure{Target: target, Stage: stage, Message: fmt.Sprint(r)}
		}
	}()

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if err := checkDimensions(w, h); err != nil {
		return Image{}, &Failure{Target: target, Stage: stage, Message: err.Error(), Err: err}
	}

	stage = "encode"
	intermediate, err := p.codec.Encode(img, p.baseQuality)
	if err != nil {
		return Image{}, &Failure{Target: target, Stage: stage, Message: err.Error(), Err: err}
	}

	stage = "decode"
	decoded, err := p.codec.Decode(intermediate)
	if err != nil {
		return Image{}, &Failure{Target: target, Stage: stage, Message: err.Error(), Err: err}
	}
	if db := decoded.Bounds(); db.Dx() != w || db.Dy() != h {
		return Image{}, &Failure{
			Target:  target,
			Stage:   stage,
			Message: fmt.Sprintf("decoded %dx%d, want %dx%d", db.Dx(), db.Dy(), w, h),
			Err:     ErrDimension,
		}
	}

	stage = "compress"
	data, err := p.comp.Compress(rgbScanlines(decoded), w, h)
	if err != nil {
		return Image{}, &Failure{Target: target, Stage: stage, Message: err.Error(), Err: err}
	}
	return Image{Data: data, Width: w, Height: h}, nil
}

func recoverInto(err *error, target, stage string) {
	if r := recover(); r != nil {
		*err = &Failure{Target: target, Stage: stage, Message: fmt.Sprint(r)}
	}
}

// checkDimensions 校验尺寸能否放入压缩器的数值范围，超出即失败而非截断
func checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 || w > maxDimension || h > maxDimension {
		return fmt.Errorf("%w: %dx%d (max %d)", ErrDimension, w, h, maxDimension)
	}
	return nil
}

// rgbScanlines 丢弃 alpha，输出紧凑的 RGB 行
func rgbScanlines(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*3)

	switch m := img.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				yi, ci := m.YOffset(x, y), m.COffset(x, y)
				r, g, bb := color.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
				out = append(out, r, g, bb)
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, y):]
			for x := 0; x < w; x++ {
				out = append(out, row[x], row[x], row[x])
			}
		}
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, y):]
			for x := 0; x < w; x++ {
				out = append(out, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
				out = append(out, c.R, c.G, c.B)
			}
		}
	}
	return out
}
