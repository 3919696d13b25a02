package arena

// Direction 移动方向，数值即线上编码
type Direction uint8

const (
	Left Direction = iota
	Right
	Up
	Down
)

// Directions 按线上编码顺序排列的全部方向
var Directions = [...]Direction{Left, Right, Up, Down}

func (d Direction) Valid() bool { return d <= Down }

func (d Direction) DX() int {
	switch d {
	case Left:
		return -1
	case Right:
		return 1
	}
	return 0
}

func (d Direction) DY() int {
	switch d {
	case Up:
		return -1
	case Down:
		return 1
	}
	return 0
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "invalid"
}
