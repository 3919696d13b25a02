package arena

// enclose 在回到自己领地时结算本次外出：按插入顺序把每段轨迹转为领地，
// 再从它的四个邻格向外洪泛。一个区域只有在整块都没有触及网格边界时才会被填充。
// 访问标记在整次结算中保留，已访问的格子视为已处理（不再重复遍历）。
func (p *Player) enclose() {
	a := p.arena
	a.beginFill()
	for _, t := range p.trail {
		a.SetTrail(t.X, t.Y, 0)
		p.claim(t)
		a.visit(t)

		for _, d := range Directions {
			n := Point{t.X + d.DX(), t.Y + d.DY()}
			if region, enclosed := a.flood(n, p.color); enclosed {
				for _, c := range region {
					p.claim(c)
				}
			}
		}
	}
	p.trail = p.trail[:0]
	clear(p.trailSet)
}

// beginFill 开始一次新的结算：推进标记纪元，避免清零整块标记缓冲
func (a *Arena) beginFill() {
	a.markEpoch++
	if a.markEpoch == 0 {
		clear(a.marks)
		a.markEpoch = 1
	}
}

func (a *Arena) visited(pt Point) bool { return a.marks[a.index(pt.X, pt.Y)] == a.markEpoch }

func (a *Arena) visit(pt Point) { a.marks[a.index(pt.X, pt.Y)] = a.markEpoch }

// flood 从 start 出发用显式栈遍历由非本色格子组成的连通区域。
// 本色领地或本色轨迹是区域的边界。区域会被完整遍历（全部打上访问标记），
// 只要其中任一格与网格外相邻就判定为未封闭。返回的切片在下一次调用前有效。
func (a *Arena) flood(start Point, color uint8) ([]Point, bool) {
	if !a.InBounds(start.X, start.Y) {
		return nil, false
	}
	if a.visited(start) {
		return nil, true
	}
	a.visit(start)
	if a.isBorder(start, color) {
		return nil, true
	}

	region := a.region[:0]
	stack := append(a.stack[:0], start)
	enclosed := true
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		region = append(region, c)

		for _, d := range Directions {
			n := Point{c.X + d.DX(), c.Y + d.DY()}
			if !a.InBounds(n.X, n.Y) {
				enclosed = false
				continue
			}
			if a.visited(n) {
				continue
			}
			a.visit(n)
			if a.isBorder(n, color) {
				continue
			}
			stack = append(stack, n)
		}
	}
	a.stack = stack
	a.region = region
	if !enclosed {
		return nil, false
	}
	return region, true
}

func (a *Arena) isBorder(pt Point, color uint8) bool {
	return a.Cell(pt.X, pt.Y) == color || a.Trail(pt.X, pt.Y) == color
}
