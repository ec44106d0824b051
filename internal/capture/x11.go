package capture

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// X11Backend 通过 X11 (EWMH) 枚举、捕获窗口并查询焦点。
// 每次调用都新建连接，不在调用之间保留任何状态。
type X11Backend struct {
	// Display 为空时使用 $DISPLAY
	Display string
}

type x11Atoms struct {
	clientList   xproto.Atom
	activeWindow xproto.Atom
	wmName       xproto.Atom
	utf8String   xproto.Atom
	wmState      xproto.Atom
	stateHidden  xproto.Atom
}

type x11Session struct {
	conn  *xgb.Conn
	root  xproto.Window
	atoms x11Atoms
}

func (b *X11Backend) open() (*x11Session, error) {
	conn, err := xgb.NewConnDisplay(b.Display)
	if err != nil {
		return nil, fmt.Errorf("connect x11: %w", err)
	}
	s := &x11Session{conn: conn, root: xproto.Setup(conn).DefaultScreen(conn).Root}
	names := []struct {
		name string
		dst  *xproto.Atom
	}{
		{"_NET_CLIENT_LIST", &s.atoms.clientList},
		{"_NET_ACTIVE_WINDOW", &s.atoms.activeWindow},
		{"_NET_WM_NAME", &s.atoms.wmName},
		{"UTF8_STRING", &s.atoms.utf8String},
		{"_NET_WM_STATE", &s.atoms.wmState},
		{"_NET_WM_STATE_HIDDEN", &s.atoms.stateHidden},
	}
	for _, n := range names {
		reply, err := xproto.InternAtom(conn, false, uint16(len(n.name)), n.name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("intern atom %s: %w", n.name, err)
		}
		*n.dst = reply.Atom
	}
	return s, nil
}

func (s *x11Session) close() { s.conn.Close() }

func (b *X11Backend) Monitors() ([]Source, error) {
	return nil, errors.New("x11 backend does not enumerate monitors")
}

// Windows 按 _NET_CLIENT_LIST 顺序列出顶层窗口。
// 枚举过程中消失的窗口会被跳过，而不是让整个枚举失败。
func (b *X11Backend) Windows() ([]Source, error) {
	s, err := b.open()
	if err != nil {
		return nil, err
	}
	defer s.close()

	reply, err := xproto.GetProperty(s.conn, false, s.root, s.atoms.clientList,
		xproto.AtomWindow, 0, math.MaxUint32).Reply()
	if err != nil {
		return nil, fmt.Errorf("read _NET_CLIENT_LIST: %w", err)
	}
	ids := windowList(reply)
	out := make([]Source, 0, len(ids))
	for _, w := range ids {
		src, err := s.describe(w)
		if err != nil {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

func (s *x11Session) describe(w xproto.Window) (Source, error) {
	geom, err := xproto.GetGeometry(s.conn, xproto.Drawable(w)).Reply()
	if err != nil {
		return Source{}, err
	}
	pos, err := xproto.TranslateCoordinates(s.conn, w, s.root, 0, 0).Reply()
	if err != nil {
		return Source{}, err
	}
	return Source{
		Kind:      KindWindow,
		ID:        uint32(w),
		Name:      s.title(w),
		X:         int32(pos.DstX),
		Y:         int32(pos.DstY),
		Width:     uint32(geom.Width),
		Height:    uint32(geom.Height),
		Minimized: s.hidden(w),
	}, nil
}

func (s *x11Session) title(w xproto.Window) string {
	if r, err := xproto.GetProperty(s.conn, false, w, s.atoms.wmName,
		s.atoms.utf8String, 0, 1024).Reply(); err == nil && len(r.Value) > 0 {
		return string(r.Value)
	}
	if r, err := xproto.GetProperty(s.conn, false, w, xproto.AtomWmName,
		xproto.AtomString, 0, 1024).Reply(); err == nil {
		return string(r.Value)
	}
	return ""
}

func (s *x11Session) hidden(w xproto.Window) bool {
	r, err := xproto.GetProperty(s.conn, false, w, s.atoms.wmState,
		xproto.AtomAtom, 0, 64).Reply()
	if err != nil {
		return false
	}
	for _, a := range windowList(r) {
		if xproto.Atom(a) == s.atoms.stateHidden {
			return true
		}
	}
	return false
}

// Capture 以窗口当前几何尺寸读取 ZPixmap 像素
func (b *X11Backend) Capture(src Source) (*image.RGBA, error) {
	if src.Kind != KindWindow {
		return nil, fmt.Errorf("x11 backend cannot capture %s", src.Kind)
	}
	s, err := b.open()
	if err != nil {
		return nil, err
	}
	defer s.close()

	w := xproto.Window(src.ID)
	geom, err := xproto.GetGeometry(s.conn, xproto.Drawable(w)).Reply()
	if err != nil {
		return nil, fmt.Errorf("window %d geometry: %w", src.ID, err)
	}
	if geom.Width == 0 || geom.Height == 0 {
		return nil, fmt.Errorf("window %d has empty geometry", src.ID)
	}
	reply, err := xproto.GetImage(s.conn, xproto.ImageFormatZPixmap, xproto.Drawable(w),
		0, 0, geom.Width, geom.Height, math.MaxUint32).Reply()
	if err != nil {
		return nil, fmt.Errorf("window %d get image: %w", src.ID, err)
	}
	stride, err := zpixmapStride(xproto.Setup(s.conn).PixmapFormats, reply.Depth, int(geom.Width))
	if err != nil {
		return nil, fmt.Errorf("window %d: %w", src.ID, err)
	}
	return bgrxToRGBA(reply.Data, int(geom.Width), int(geom.Height), stride)
}

// zpixmapStride 按服务器声明的像素格式计算行跨度，只接受 32 bpp
func zpixmapStride(formats []xproto.Format, depth byte, width int) (int, error) {
	for _, f := range formats {
		if f.Depth != depth {
			continue
		}
		if f.BitsPerPixel != 32 {
			return 0, fmt.Errorf("unsupported pixmap format: depth %d uses %d bpp", depth, f.BitsPerPixel)
		}
		pad := int(f.ScanlinePad)
		if pad == 0 {
			pad = 32
		}
		bits := width * 32
		return (bits + pad - 1) / pad * pad / 8, nil
	}
	return 0, fmt.Errorf("no pixmap format for depth %d", depth)
}

// FocusedWindow 读取 _NET_ACTIVE_WINDOW
func (b *X11Backend) FocusedWindow() (uint32, error) {
	s, err := b.open()
	if err != nil {
		return 0, err
	}
	defer s.close()

	r, err := xproto.GetProperty(s.conn, false, s.root, s.atoms.activeWindow,
		xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, fmt.Errorf("read _NET_ACTIVE_WINDOW: %w", err)
	}
	ids := windowList(r)
	if len(ids) == 0 {
		return 0, nil
	}
	return uint32(ids[0]), nil
}

func windowList(r *xproto.GetPropertyReply) []xproto.Window {
	if r == nil || r.Format != 32 {
		return nil
	}
	n := len(r.Value) / 4
	out := make([]xproto.Window, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, xproto.Window(xgb.Get32(r.Value[i*4:])))
	}
	return out
}

// bgrxToRGBA 将 32 位 ZPixmap (小端 B,G,R,X) 转为不透明 RGBA，stride 为每行字节数
func bgrxToRGBA(data []byte, w, h, stride int) (*image.RGBA, error) {
	if stride < w*4 {
		return nil, fmt.Errorf("stride %d too small for width %d", stride, w)
	}
	if h > 0 && len(data) < stride*(h-1)+w*4 {
		return nil, fmt.Errorf("short image data: %d bytes for %dx%d stride %d", len(data), w, h, stride)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := data[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			o := x * 4
			dst[o] = row[o+2]
			dst[o+1] = row[o+1]
			dst[o+2] = row[o]
			dst[o+3] = 0xff
		}
	}
	return img, nil
}
