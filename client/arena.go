package client

import (
	"fmt"

	"gridclaim/arena"
	"gridclaim/protocol"
)

// Player 其他玩家（或自己）在本地镜像中的位置
type Player struct {
	Color     uint8
	Username  string
	CellX     int
	FracX     int
	CellY     int
	FracY     int
	Direction arena.Direction
}

// Arena 服务端竞技场的本地镜像
type Arena struct {
	Width, Height int
	Cells         []uint8
	Trails        []uint8
	Players       map[uint8]*Player
}

func (a *Arena) Cell(x, y int) uint8  { return a.Cells[y*a.Width+x] }
func (a *Arena) Trail(x, y int) uint8 { return a.Trails[y*a.Width+x] }

// Change 一个格子的新颜色，Index = y*Width + x
type Change struct {
	Index int
	Color uint8
}

// Delta 一帧增量的解码结果
type Delta struct {
	Added   []Player
	Updated []Player
	Cells   []Change
	Trails  []Change
	Removed []uint8
}

// Empty 这一帧没有任何变化
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Cells) == 0 &&
		len(d.Trails) == 0 && len(d.Removed) == 0
}

func readRecord(r *protocol.ReadBuffer, p *Player) {
	p.Color = r.Uint8()
	p.CellX = int(r.Uint8())
	p.FracX = int(r.Int8())
	p.CellY = int(r.Uint8())
	p.FracY = int(r.Int8())
	p.Direction = arena.Direction(r.Uint8())
}

func readCount(r *protocol.ReadBuffer, what string) (int, error) {
	n := r.Int32()
	if err := r.Err(); err != nil {
		return 0, err
	}
	// 每个元素至少 1 字节
	if n < 0 || int(n) > r.Remaining() {
		return 0, fmt.Errorf("client: bad %s count %d", what, n)
	}
	return int(n), nil
}

// DecodeSnapshot 解码握手成功后的完整快照
func DecodeSnapshot(r *protocol.ReadBuffer, color uint8, username string) (*Arena, *Player, error) {
	a := &Arena{
		Width:   int(r.Uint8()),
		Height:  int(r.Uint8()),
		Players: make(map[uint8]*Player),
	}
	n := a.Width * a.Height
	a.Cells = make([]uint8, n)
	a.Trails = make([]uint8, n)
	for i := 0; i < n; i++ {
		a.Cells[i] = r.Uint8()
		a.Trails[i] = r.Uint8()
	}

	self := &Player{Color: color, Username: username}
	self.CellX = int(r.Uint8())
	self.FracX = int(r.Int8())
	self.CellY = int(r.Uint8())
	self.FracY = int(r.Int8())
	self.Direction = arena.Direction(r.Uint8())
	a.Players[color] = self

	others, err := readCount(r, "player")
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < others; i++ {
		p := &Player{Username: r.String()}
		readRecord(r, p)
		a.Players[p.Color] = p
	}
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	return a, self, nil
}

func readChanges(r *protocol.ReadBuffer) []Change {
	bs := r.Bitset()
	var out []Change
	for i, ok := bs.NextSet(0); ok; i, ok = bs.NextSet(i + 1) {
		out = append(out, Change{Index: int(i), Color: r.Uint8()})
	}
	return out
}

// DecodeDelta 解码一帧增量（不含长度前缀）
func DecodeDelta(r *protocol.ReadBuffer) (Delta, error) {
	var d Delta
	n, err := readCount(r, "added")
	if err != nil {
		return d, err
	}
	for i := 0; i < n; i++ {
		p := Player{Username: r.String()}
		readRecord(r, &p)
		d.Added = append(d.Added, p)
	}

	if n, err = readCount(r, "updated"); err != nil {
		return d, err
	}
	for i := 0; i < n; i++ {
		var p Player
		readRecord(r, &p)
		d.Updated = append(d.Updated, p)
	}

	d.Cells = readChanges(r)
	d.Trails = readChanges(r)

	if n, err = readCount(r, "removed"); err != nil {
		return d, err
	}
	for i := 0; i < n; i++ {
		d.Removed = append(d.Removed, r.Uint8())
	}
	return d, r.Err()
}

// Apply 按 added、updated、cells、trails、removed 的顺序更新镜像
func (a *Arena) Apply(d Delta) {
	for _, p := range d.Added {
		a.Players[p.Color] = &p
	}
	for _, u := range d.Updated {
		p, ok := a.Players[u.Color]
		if !ok {
			continue
		}
		p.CellX, p.FracX = u.CellX, u.FracX
		p.CellY, p.FracY = u.CellY, u.FracY
		p.Direction = u.Direction
	}
	for _, c := range d.Cells {
		if c.Index < len(a.Cells) {
			a.Cells[c.Index] = c.Color
		}
	}
	for _, c := range d.Trails {
		if c.Index < len(a.Trails) {
			a.Trails[c.Index] = c.Color
		}
	}
	for _, color := range d.Removed {
		delete(a.Players, color)
	}
}
