package arena

import "testing"

// steer 在格子对齐处转向 d，然后前进 cells 个格子
func steer(a *Arena, p *Player, d Direction, cells int) {
	p.NextDirection(d)
	for i := 0; i < cells*CellSize/Step; i++ {
		a.Tick()
	}
}

func TestMovementRollsIntoNextCell(t *testing.T) {
	a := newTestArena(20, 20)
	p := join(t, a, 1, "p", Point{10, 10}, Right)
	p.SetMoving()

	for i := 0; i < CellSize/Step-1; i++ {
		a.Tick()
	}
	if p.CellX() != 10 || p.FracX() != CellSize-Step {
		t.Fatalf("at (%d,+%d)", p.CellX(), p.FracX())
	}
	if p.NextX() != 11 {
		t.Fatalf("NextX = %d", p.NextX())
	}
	a.Tick()
	if p.CellX() != 11 || p.FracX() != 0 {
		t.Fatalf("at (%d,+%d), want (11,+0)", p.CellX(), p.FracX())
	}
}

func TestDirectionChangeWaitsForAlignment(t *testing.T) {
	a := newTestArena(20, 20)
	p := join(t, a, 1, "p", Point{10, 10}, Right)
	p.SetMoving()

	a.Tick()
	p.NextDirection(Up)
	a.Tick()
	if p.Direction() != Right || p.FracY() != 0 {
		t.Fatal("direction changed mid-cell")
	}
	for p.FracX() != 0 {
		a.Tick()
	}
	a.Tick()
	if p.Direction() != Up || p.FracY() != -Step {
		t.Fatalf("direction %v fracY %d after alignment", p.Direction(), p.FracY())
	}
	if _, ok := p.PendingDirection(); ok {
		t.Fatal("pending direction should be consumed")
	}
}

func TestNextDirectionSameAsCurrentClears(t *testing.T) {
	a := newTestArena(10, 10)
	p := a.NewPlayer(1, "p", Point{5, 5}, Left)
	p.NextDirection(Up)
	p.NextDirection(Left)
	if _, ok := p.PendingDirection(); ok {
		t.Fatal("pending direction should be cleared")
	}
}

func TestBoundaryDeathHappensOnceWithoutMutation(t *testing.T) {
	a := newTestArena(10, 10)
	p := join(t, a, 1, "edge", Point{0, 5}, Left)
	watcher := join(t, a, 2, "watcher", Point{6, 6}, Right)
	p.SetMoving()
	p.ClearDiff()
	watcher.ClearDiff()
	before := append([]uint8(nil), a.cells...)
	beforeTrails := append([]uint8(nil), a.trails...)

	res := a.Tick()
	if len(res.Dead) != 1 || res.Dead[0] != p {
		t.Fatalf("dead = %v", res.Dead)
	}
	if p.DeathCause() != CauseBoundary {
		t.Fatalf("cause = %v", p.DeathCause())
	}
	if string(before) != string(a.cells) || string(beforeTrails) != string(a.trails) {
		t.Fatal("grid mutated on a fatal step")
	}
	if watcher.dirtyCells.Any() || watcher.dirtyTrails.Any() {
		t.Fatal("observer saw mutations from a fatal step")
	}

	res = a.Tick()
	if len(res.Dead) != 0 {
		t.Fatal("player died twice")
	}
}

func TestSelfTrailCollision(t *testing.T) {
	a := newTestArena(20, 20)
	p := join(t, a, 1, "p", Point{5, 5}, Right)
	p.SetMoving()
	p.cellX = 8
	a.SetTrail(9, 5, 1)

	res := a.Tick()
	if len(res.Dead) != 1 || p.DeathCause() != CauseSelfTrail {
		t.Fatalf("dead=%v cause=%v", res.Dead, p.DeathCause())
	}
}

func TestOpponentTrailIsNotFatal(t *testing.T) {
	a := newTestArena(20, 20)
	p := join(t, a, 1, "p", Point{5, 5}, Right)
	join(t, a, 2, "q", Point{15, 15}, Left)
	p.SetMoving()
	p.cellX = 8
	a.SetTrail(9, 5, 2)

	res := a.Tick()
	if len(res.Dead) != 0 {
		t.Fatal("crossing an opponent trail should not kill")
	}
	if a.Trail(9, 5) != 1 {
		t.Fatalf("trail = %d, want 1", a.Trail(9, 5))
	}
}

func TestLeavingTerritoryLeavesOrderedTrail(t *testing.T) {
	a := newTestArena(20, 20)
	p := join(t, a, 1, "p", Point{5, 5}, Right)
	p.SetMoving()

	steer(a, p, Right, 3)
	want := []Point{{7, 5}, {8, 5}}
	got := p.Trail()
	if len(got) != len(want) {
		t.Fatalf("trail = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] || a.Trail(want[i].X, want[i].Y) != 1 {
			t.Fatalf("trail = %v, want %v", got, want)
		}
	}
}

// 玩家绕出一圈，包住自己领地东侧 3×3 的空地
func TestLoopEnclosesRegion(t *testing.T) {
	a := newTestArena(40, 40)
	p := join(t, a, 1, "looper", Point{10, 10}, Up)
	other := join(t, a, 2, "other", Point{30, 30}, Left)
	p.cellX, p.cellY = 11, 9
	p.SetMoving()
	other.ClearDiff()

	steer(a, p, Up, 1)
	steer(a, p, Right, 4)
	steer(a, p, Down, 4)
	steer(a, p, Left, 4)
	if len(p.Trail()) != 13 {
		t.Fatalf("trail length = %d, want 13", len(p.Trail()))
	}
	p.NextDirection(Up)
	a.Tick()

	if len(p.Trail()) != 0 {
		t.Fatal("trail should be consumed by the enclosure")
	}
	for y := 9; y <= 11; y++ {
		for x := 12; x <= 14; x++ {
			if a.Cell(x, y) != 1 {
				t.Fatalf("interior (%d,%d) = %d", x, y, a.Cell(x, y))
			}
			if !other.dirtyCells.Test(uint(y*40 + x)) {
				t.Fatalf("observer missed (%d,%d)", x, y)
			}
		}
	}
	if p.OwnedCells() != 9+13+9 {
		t.Fatalf("owned = %d, want 31", p.OwnedCells())
	}
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if a.Trail(x, y) == 1 {
				t.Fatalf("leftover trail at (%d,%d)", x, y)
			}
			if a.Cell(x, y) == 1 && !p.Owns(Point{x, y}) {
				t.Fatalf("cell (%d,%d) painted but not owned", x, y)
			}
		}
	}
}
