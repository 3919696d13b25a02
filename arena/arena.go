// Package arena 持有权威的网格状态与玩家注册表。
// 所有方法都假定在唯一的模拟协程上调用。
package arena

import (
	"math/rand/v2"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

const (
	DefaultWidth  = 90
	DefaultHeight = 70
	// CellSize 一个格子的子格单位数
	CellSize = 30
	// Step 每个 Tick 前进的子格单位数
	Step = 2
	// spawnMargin 出生点距离边界的最小格数
	spawnMargin = 3
)

// AddResult 加入竞技场的结果
type AddResult int

const (
	Success AddResult = iota
	DuplicateColor
	DuplicateUsername
)

func (r AddResult) String() string {
	switch r {
	case Success:
		return "success"
	case DuplicateColor:
		return "duplicate_color"
	case DuplicateUsername:
		return "duplicate_username"
	}
	return "unknown"
}

// Point 网格坐标
type Point struct {
	X, Y int
}

// Arena 竞技场：格子归属、轨迹颜色与玩家注册表
type Arena struct {
	width, height int
	cells         []uint8
	trails        []uint8

	players    []*Player // 按加入顺序
	byColor    map[uint8]*Player
	byUsername map[string]*Player

	rng *rand.Rand

	// 洪泛填充复用的访问标记与栈
	marks     []uint32
	markEpoch uint32
	stack     []Point
	region    []Point
}

// New 创建 width×height 的竞技场；rng 为 nil 时使用随机种子
func New(width, height int, rng *rand.Rand) *Arena {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	n := width * height
	return &Arena{
		width:      width,
		height:     height,
		cells:      make([]uint8, n),
		trails:     make([]uint8, n),
		byColor:    make(map[uint8]*Player),
		byUsername: make(map[string]*Player),
		rng:        rng,
		marks:      make([]uint32, n),
	}
}

func (a *Arena) Width() int  { return a.width }
func (a *Arena) Height() int { return a.height }

// InBounds 坐标是否在 [0,width)×[0,height) 内
func (a *Arena) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < a.width && y < a.height
}

func (a *Arena) index(x, y int) int { return y*a.width + x }

// Cell 返回格子归属颜色，0 表示无主
func (a *Arena) Cell(x, y int) uint8 { return a.cells[a.index(x, y)] }

// Trail 返回格子上的轨迹颜色，0 表示无轨迹
func (a *Arena) Trail(x, y int) uint8 { return a.trails[a.index(x, y)] }

// SetCell 修改格子归属；值变化时标记到每个观察者的脏位图
func (a *Arena) SetCell(x, y int, color uint8) {
	i := a.index(x, y)
	if a.cells[i] == color {
		return
	}
	a.cells[i] = color
	for _, p := range a.players {
		p.dirtyCells.Set(uint(i))
	}
}

// SetTrail 修改格子上的轨迹；值变化时标记到每个观察者的脏位图
func (a *Arena) SetTrail(x, y int, color uint8) {
	i := a.index(x, y)
	if a.trails[i] == color {
		return
	}
	a.trails[i] = color
	for _, p := range a.players {
		p.dirtyTrails.Set(uint(i))
	}
}

// Players 按加入顺序返回当前注册的玩家（调用方不可修改）
func (a *Arena) Players() []*Player { return a.players }

// PlayerByColor 按颜色查找玩家
func (a *Arena) PlayerByColor(color uint8) *Player { return a.byColor[color] }

// Contains 玩家是否仍在注册表中
func (a *Arena) Contains(p *Player) bool {
	return p != nil && a.byColor[p.color] == p
}

// NewPlayer 创建一个挂在本竞技场上的玩家，尚未注册
func (a *Arena) NewPlayer(color uint8, username string, spawn Point, dir Direction) *Player {
	n := uint(a.width * a.height)
	return &Player{
		arena:       a,
		color:       color,
		username:    username,
		cellX:       spawn.X,
		cellY:       spawn.Y,
		direction:   dir,
		cells:       make(map[Point]struct{}),
		trailSet:    make(map[Point]struct{}),
		updatedSet:  make(map[*Player]struct{}),
		dirtyCells:  bitset.New(n),
		dirtyTrails: bitset.New(n),
	}
}

// RandomSpawn 随机选择一个远离边界的出生格和初始方向
func (a *Arena) RandomSpawn() (Point, Direction) {
	p := Point{
		X: spawnMargin + a.rng.IntN(a.width-2*spawnMargin),
		Y: spawnMargin + a.rng.IntN(a.height-2*spawnMargin),
	}
	return p, Directions[a.rng.IntN(len(Directions))]
}

// AddPlayer 注册玩家：先检查颜色，再检查用户名。
// 成功时通知所有已有玩家，并把出生点周围 3×3 划为该玩家的领地。
func (a *Arena) AddPlayer(p *Player) AddResult {
	if _, ok := a.byColor[p.color]; ok {
		return DuplicateColor
	}
	if _, ok := a.byUsername[p.username]; ok {
		return DuplicateUsername
	}

	for _, other := range a.players {
		// 同色玩家的移除尚未发送时，新玩家的 added 会先被解码，随后的移除会误删新玩家
		other.removed = slices.DeleteFunc(other.removed, func(r *Player) bool { return r.color == p.color })
		other.added = append(other.added, p)
	}
	a.players = append(a.players, p)
	a.byColor[p.color] = p
	a.byUsername[p.username] = p

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := p.cellX+dx, p.cellY+dy
			if a.InBounds(x, y) {
				p.claim(Point{x, y})
			}
		}
	}
	return Success
}

// RemovePlayer 注销玩家，通知剩余玩家，并清除其仍然持有的格子与轨迹
func (a *Arena) RemovePlayer(p *Player) {
	if !a.Contains(p) {
		return
	}
	delete(a.byColor, p.color)
	delete(a.byUsername, p.username)
	for i, other := range a.players {
		if other == p {
			a.players = append(a.players[:i], a.players[i+1:]...)
			break
		}
	}
	for _, other := range a.players {
		other.forget(p)
	}

	for c := range p.cells {
		if a.Cell(c.X, c.Y) == p.color {
			a.SetCell(c.X, c.Y, 0)
		}
	}
	for _, t := range p.trail {
		if a.Trail(t.X, t.Y) == p.color {
			a.SetTrail(t.X, t.Y, 0)
		}
	}
}

// TickResult 一次 Tick 后存活与死亡的移动中玩家
type TickResult struct {
	Alive []*Player
	Dead  []*Player
}

// Tick 推进所有移动中的玩家。死亡玩家只被收集，由调用方在遍历结束后移除。
func (a *Arena) Tick() TickResult {
	var res TickResult
	for _, p := range a.players {
		if !p.moving || p.dead {
			continue
		}
		p.tick()
		if p.dead {
			res.Dead = append(res.Dead, p)
			continue
		}
		for _, observer := range a.players {
			observer.markUpdated(p)
		}
		res.Alive = append(res.Alive, p)
	}
	return res
}
