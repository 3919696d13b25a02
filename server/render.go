package server

import (
	"image/color"
	"io"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"gridclaim/arena"
)

// arenaView 在模拟协程上拷贝出的只读画面，渲染在调用方协程进行
type arenaView struct {
	Width, Height int
	Cells, Trails []uint8
	Players       []playerView
}

type playerView struct {
	Color     uint8  `json:"color"`
	Username  string `json:"username"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	FracX     int    `json:"fracX"`
	FracY     int    `json:"fracY"`
	Direction string `json:"direction"`
	Moving    bool   `json:"moving"`
	Territory int    `json:"territory"`
	TrailLen  int    `json:"trail"`
}

func viewPlayers(a *arena.Arena) []playerView {
	players := a.Players()
	out := make([]playerView, 0, len(players))
	for _, p := range players {
		out = append(out, playerView{
			Color:     p.Color(),
			Username:  p.Username(),
			X:         p.CellX(),
			Y:         p.CellY(),
			FracX:     p.FracX(),
			FracY:     p.FracY(),
			Direction: p.Direction().String(),
			Moving:    p.Moving(),
			Territory: p.OwnedCells(),
			TrailLen:  len(p.Trail()),
		})
	}
	return out
}

func captureView(a *arena.Arena) arenaView {
	v := arenaView{
		Width:   a.Width(),
		Height:  a.Height(),
		Cells:   make([]uint8, a.Width()*a.Height()),
		Trails:  make([]uint8, a.Width()*a.Height()),
		Players: viewPlayers(a),
	}
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			v.Cells[y*v.Width+x] = a.Cell(x, y)
			v.Trails[y*v.Width+x] = a.Trail(x, y)
		}
	}
	return v
}

// palette 颜色值均匀散布在色环上，领地用饱和色，轨迹用浅色
func palette(c uint8) (cell, trail colorful.Color) {
	hue := float64(c) * 137.508
	for hue >= 360 {
		hue -= 360
	}
	return colorful.Hsv(hue, 0.65, 0.85), colorful.Hsv(hue, 0.3, 1)
}

// renderPNG 以每格 scale 像素绘制竞技场
func renderPNG(w io.Writer, v arenaView, scale int) error {
	if scale <= 0 {
		scale = 8
	}
	s := float64(scale)
	dc := gg.NewContext(v.Width*scale, v.Height*scale)
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.Clear()

	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			i := y*v.Width + x
			if c := v.Cells[i]; c != 0 {
				cell, _ := palette(c)
				dc.SetColor(cell)
				dc.DrawRectangle(float64(x)*s, float64(y)*s, s, s)
				dc.Fill()
			}
			if t := v.Trails[i]; t != 0 {
				_, trail := palette(t)
				dc.SetColor(trail)
				dc.DrawRectangle(float64(x)*s+s/4, float64(y)*s+s/4, s/2, s/2)
				dc.Fill()
			}
		}
	}

	for _, p := range v.Players {
		cx := (float64(p.X) + float64(p.FracX)/arena.CellSize + 0.5) * s
		cy := (float64(p.Y) + float64(p.FracY)/arena.CellSize + 0.5) * s
		dc.SetColor(color.White)
		dc.DrawCircle(cx, cy, s*0.6)
		dc.Fill()
		dc.DrawStringAnchored(p.Username, cx, cy-s, 0.5, 0)
	}
	return dc.EncodePNG(w)
}
