package arena

import (
	"slices"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// DeathCause 玩家死亡原因
type DeathCause int

const (
	CauseNone DeathCause = iota
	// CauseBoundary 下一格越出网格
	CauseBoundary
	// CauseSelfTrail 在格子对齐时撞上自己的轨迹
	CauseSelfTrail
)

func (c DeathCause) String() string {
	switch c {
	case CauseBoundary:
		return "boundary"
	case CauseSelfTrail:
		return "self_trail"
	}
	return "alive"
}

// Player 一个连接对应的移动状态、领地与面向该观察者的增量
type Player struct {
	arena    *Arena
	color    uint8
	username string

	cellX, cellY int
	fracX, fracY int
	direction    Direction
	next         Direction
	hasNext      bool
	moving       bool

	dead  bool
	cause DeathCause

	cells    map[Point]struct{}
	trail    []Point // 插入顺序即绘制顺序
	trailSet map[Point]struct{}

	// 面向本玩家（作为观察者）的增量
	added       []*Player
	updated     []*Player
	updatedSet  map[*Player]struct{}
	removed     []*Player
	dirtyCells  *bitset.BitSet
	dirtyTrails *bitset.BitSet

	// Writing 为 true 时有一次发送正在进行，模拟协程不得再写入该连接
	Writing atomic.Bool
}

func (p *Player) Color() uint8 { return p.color }
func (p *Player) Username() string { return p.username }
func (p *Player) CellX() int { return p.cellX }
func (p *Player) CellY() int { return p.cellY }
func (p *Player) FracX() int { return p.fracX }
func (p *Player) FracY() int { return p.fracY }
func (p *Player) Direction() Direction { return p.direction }
func (p *Player) Moving() bool { return p.moving }
func (p *Player) Dead() bool { return p.dead }
func (p *Player) DeathCause() DeathCause { return p.cause }

// SetMoving 收到就绪信号后开始参与模拟
func (p *Player) SetMoving() { p.moving = true }

// NextDirection 记录待生效的方向，与当前方向相同则清空
func (p *Player) NextDirection(d Direction) {
	if d == p.direction {
		p.hasNext = false
		return
	}
	p.next, p.hasNext = d, true
}

// PendingDirection 返回待生效的方向
func (p *Player) PendingDirection() (Direction, bool) { return p.next, p.hasNext }

// NextX 当前格加上子格偏移的符号
func (p *Player) NextX() int { return p.cellX + sign(p.fracX) }

// NextY 当前格加上子格偏移的符号
func (p *Player) NextY() int { return p.cellY + sign(p.fracY) }

// OwnedCells 玩家领地格数
func (p *Player) OwnedCells() int { return len(p.cells) }

// Owns 玩家的领地集合中是否包含该格
func (p *Player) Owns(pt Point) bool {
	_, ok := p.cells[pt]
	return ok
}

// Trail 按插入顺序返回当前轨迹（调用方不可修改）
func (p *Player) Trail() []Point { return p.trail }

func (p *Player) claim(pt Point) {
	p.arena.SetCell(pt.X, pt.Y, p.color)
	p.cells[pt] = struct{}{}
}

func (p *Player) markUpdated(other *Player) {
	if _, ok := p.updatedSet[other]; ok {
		return
	}
	p.updatedSet[other] = struct{}{}
	p.updated = append(p.updated, other)
}

// forget 观察者得知 other 离开：尚未发送的 added 与 updated 直接撤回，
// 已经发送过的才进入 removed
func (p *Player) forget(other *Player) {
	if _, ok := p.updatedSet[other]; ok {
		delete(p.updatedSet, other)
		p.updated = slices.DeleteFunc(p.updated, func(o *Player) bool { return o == other })
	}
	n := len(p.added)
	p.added = slices.DeleteFunc(p.added, func(o *Player) bool { return o == other })
	if len(p.added) == n {
		p.removed = append(p.removed, other)
	}
}

// Diff 面向一个观察者待发送的增量
type Diff struct {
	Added   []*Player
	Updated []*Player
	Removed []*Player
	Cells   *bitset.BitSet
	Trails  *bitset.BitSet
}

// PeekDiff 返回当前累积的增量而不清空
func (p *Player) PeekDiff() Diff {
	return Diff{
		Added:   p.added,
		Updated: p.updated,
		Removed: p.removed,
		Cells:   p.dirtyCells,
		Trails:  p.dirtyTrails,
	}
}

// ClearDiff 在增量被序列化后清空全部列表与脏位图
func (p *Player) ClearDiff() {
	p.added = p.added[:0]
	p.updated = p.updated[:0]
	clear(p.updatedSet)
	p.removed = p.removed[:0]
	p.dirtyCells.ClearAll()
	p.dirtyTrails.ClearAll()
}

func (p *Player) tick() {
	integral := p.fracX == 0 && p.fracY == 0
	if integral && p.hasNext {
		p.direction = p.next
		p.hasNext = false
	}

	p.fracX += p.direction.DX() * Step
	if abs(p.fracX) >= CellSize {
		p.fracX -= CellSize * sign(p.fracX)
		p.cellX += p.direction.DX()
	}
	p.fracY += p.direction.DY() * Step
	if abs(p.fracY) >= CellSize {
		p.fracY -= CellSize * sign(p.fracY)
		p.cellY += p.direction.DY()
	}

	a := p.arena
	nx, ny := p.NextX(), p.NextY()
	if !a.InBounds(nx, ny) {
		p.die(CauseBoundary)
		return
	}

	prevTrail := a.Trail(nx, ny)
	if integral && prevTrail == p.color {
		p.die(CauseSelfTrail)
		return
	}
	// TODO: 穿过其他玩家的轨迹应当切断对方的轨迹，目前不做处理

	if a.Cell(nx, ny) == p.color {
		if len(p.trail) > 0 {
			p.enclose()
		}
		return
	}

	a.SetTrail(nx, ny, p.color)
	pt := Point{nx, ny}
	if _, ok := p.trailSet[pt]; !ok {
		p.trailSet[pt] = struct{}{}
		p.trail = append(p.trail, pt)
	}
}

func (p *Player) die(cause DeathCause) {
	p.dead = true
	p.cause = cause
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
