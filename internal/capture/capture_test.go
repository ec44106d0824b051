package capture

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/jezek/xgb/xproto"
)

type stubBackend struct {
	monitors []Source
	windows  []Source
	listErr  error
	images   map[uint32]*image.RGBA
	calls    []uint32
}

func (b *stubBackend) Monitors() ([]Source, error) { return b.monitors, b.listErr }
func (b *stubBackend) Windows() ([]Source, error)  { return b.windows, b.listErr }

func (b *stubBackend) Capture(src Source) (*image.RGBA, error) {
	b.calls = append(b.calls, src.ID)
	img, ok := b.images[src.ID]
	if !ok {
		return nil, errors.New("source vanished")
	}
	return img, nil
}

func TestRegistryWrapsEnumerationFailure(t *testing.T) {
	r := NewRegistry(&stubBackend{listErr: errors.New("no display")})
	if _, err := r.ListMonitors(); !errors.Is(err, ErrEnumeration) {
		t.Fatalf("monitors: want ErrEnumeration, got %v", err)
	}
	if _, err := r.ListWindows(); !errors.Is(err, ErrEnumeration) {
		t.Fatalf("windows: want ErrEnumeration, got %v", err)
	}
}

func TestRegistryTagsKinds(t *testing.T) {
	b := &stubBackend{
		monitors: []Source{{ID: 1, Minimized: true}},
		windows:  []Source{{ID: 2, Minimized: true}},
	}
	r := NewRegistry(b)
	ms, _ := r.ListMonitors()
	if ms[0].Kind != KindMonitor || ms[0].Minimized {
		t.Fatalf("monitor not normalised: %+v", ms[0])
	}
	ws, _ := r.ListWindows()
	if ws[0].Kind != KindWindow || !ws[0].Minimized {
		t.Fatalf("window not tagged: %+v", ws[0])
	}
	// 后端持有的切片保持原样
	if b.monitors[0].Kind != 0 || !b.monitors[0].Minimized || b.windows[0].Kind != 0 {
		t.Fatalf("backend slices modified: %+v %+v", b.monitors[0], b.windows[0])
	}
}

func TestAcquireSkipsMinimizedWithoutBackendCall(t *testing.T) {
	b := &stubBackend{images: map[uint32]*image.RGBA{7: image.NewRGBA(image.Rect(0, 0, 4, 4))}}
	a := NewAcquirer(b)
	_, err := a.Acquire(Source{Kind: KindWindow, ID: 7, Minimized: true})
	if !errors.Is(err, ErrMinimized) || !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("want minimized capture failure, got %v", err)
	}
	if len(b.calls) != 0 {
		t.Fatalf("backend called for minimized window: %v", b.calls)
	}
}

func TestAcquireFailures(t *testing.T) {
	b := &stubBackend{images: map[uint32]*image.RGBA{
		1: image.NewRGBA(image.Rect(0, 0, 0, 10)),
		2: nil,
	}}
	a := NewAcquirer(b)
	for _, id := range []uint32{1, 2, 3} {
		_, err := a.Acquire(Source{Kind: KindMonitor, ID: id})
		var ce *CaptureError
		if !errors.As(err, &ce) || !errors.Is(err, ErrCaptureFailed) {
			t.Fatalf("source %d: want CaptureError, got %v", id, err)
		}
		if ce.Source.ID != id {
			t.Fatalf("source %d: error carries %d", id, ce.Source.ID)
		}
	}
}

func TestFrameFromRGBARepacksSubImage(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 6, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			base.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 9, A: 255})
		}
	}
	sub := base.SubImage(image.Rect(2, 1, 5, 3)).(*image.RGBA)

	f, err := FrameFromRGBA(sub)
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 3 || f.Height != 2 || len(f.Pix) != 3*2*4 {
		t.Fatalf("unexpected frame %dx%d len=%d", f.Width, f.Height, len(f.Pix))
	}
	got := f.RGBA().RGBAAt(0, 0)
	if got.R != 2 || got.G != 1 {
		t.Fatalf("origin pixel = %+v", got)
	}
	got = f.RGBA().RGBAAt(2, 1)
	if got.R != 4 || got.G != 2 {
		t.Fatalf("last pixel = %+v", got)
	}
}

func TestBGRXToRGBA(t *testing.T) {
	img, err := bgrxToRGBA([]byte{1, 2, 3, 0, 4, 5, 6, 0}, 2, 1, 8)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{3, 2, 1, 255, 6, 5, 4, 255}
	for i := range want {
		if img.Pix[i] != want[i] {
			t.Fatalf("pix = %v, want %v", img.Pix, want)
		}
	}
	if _, err := bgrxToRGBA([]byte{1, 2, 3}, 1, 1, 4); err == nil {
		t.Fatal("expected short data error")
	}
}

func TestBGRXToRGBAHonoursStride(t *testing.T) {
	// 1x2，每行补齐到 8 字节
	data := []byte{
		1, 2, 3, 0, 0xee, 0xee, 0xee, 0xee,
		4, 5, 6, 0,
	}
	img, err := bgrxToRGBA(data, 1, 2, 8)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(0, 1); c.R != 6 || c.G != 5 || c.B != 4 || c.A != 255 {
		t.Fatalf("second row = %+v", c)
	}
}

func TestZPixmapStride(t *testing.T) {
	formats := []xproto.Format{
		{Depth: 1, BitsPerPixel: 1, ScanlinePad: 32},
		{Depth: 16, BitsPerPixel: 16, ScanlinePad: 32},
		{Depth: 24, BitsPerPixel: 32, ScanlinePad: 32},
		{Depth: 32, BitsPerPixel: 32, ScanlinePad: 64},
	}
	tests := []struct {
		name    string
		depth   byte
		width   int
		want    int
		wantErr bool
	}{
		{"depth 24", 24, 3, 12, false},
		{"padded to 64 bits", 32, 3, 16, false},
		{"16 bpp rejected", 16, 3, 0, true},
		{"unknown depth", 8, 3, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := zpixmapStride(formats, tc.depth, tc.width)
			if (err != nil) != tc.wantErr || got != tc.want {
				t.Fatalf("stride = %d, err = %v", got, err)
			}
		})
	}
}
