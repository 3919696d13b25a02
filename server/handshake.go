package server

import (
	"gridclaim/arena"
	"gridclaim/protocol"
)

const (
	minJoinLength = 3
	maxJoinLength = 33

	msgDuplicateColor    = "Choose another color, please"
	msgDuplicateUsername = "Choose another username, please"
)

// validJoinLength 1 字节颜色 + 1..16 个 UTF-16 码元
func validJoinLength(length int) bool {
	return length >= minJoinLength && length <= maxJoinLength && length%2 == 1
}

// parseJoin 校验并解析加入帧：u8 color + UTF-16 用户名（1..16 个可打印 ASCII 码元）
func parseJoin(length int, r *protocol.ReadBuffer) (uint8, string, error) {
	if !validJoinLength(length) {
		return 0, "", violation(reasonMalformedJoin, "frame length %d", length)
	}
	frame := r.Next(length)
	color := frame.Uint8()
	units := frame.UTF16Units((length - 1) / 2)
	if err := frame.Err(); err != nil {
		return 0, "", violation(reasonMalformedJoin, "%v", err)
	}
	if color == 0 {
		return 0, "", violation(reasonMalformedJoin, "color 0 is reserved")
	}
	name := make([]byte, len(units))
	for i, u := range units {
		if u < 33 || u > 126 {
			return 0, "", violation(reasonMalformedJoin, "username unit %#04x at %d", u, i)
		}
		name[i] = byte(u)
	}
	return color, string(name), nil
}

// rejectMessage AddPlayer 失败时回给客户端的提示
func rejectMessage(res arena.AddResult) string {
	if res == arena.DuplicateColor {
		return msgDuplicateColor
	}
	return msgDuplicateUsername
}

// encodeReject u16 字符数 + UTF-16 提示，随后由调用方关闭连接
func encodeReject(w *protocol.WriteBuffer, res arena.AddResult) error {
	w.PutString(rejectMessage(res))
	return w.Err()
}

// encodeJoinAccepted 0 长度错误标记 + 带长度前缀的完整快照
func encodeJoinAccepted(w *protocol.WriteBuffer, a *arena.Arena, self *arena.Player) error {
	w.PutUint16(0)
	if err := w.StartLength(); err != nil {
		return err
	}
	w.PutUint8(uint8(a.Width()))
	w.PutUint8(uint8(a.Height()))
	for y := 0; y < a.Height(); y++ {
		for x := 0; x < a.Width(); x++ {
			w.PutUint8(a.Cell(x, y))
			w.PutUint8(a.Trail(x, y))
		}
	}
	w.PutUint8(uint8(self.CellX()))
	w.PutInt8(int8(self.FracX()))
	w.PutUint8(uint8(self.CellY()))
	w.PutInt8(int8(self.FracY()))
	w.PutUint8(uint8(self.Direction()))

	players := a.Players()
	w.PutInt32(int32(len(players) - 1))
	for _, p := range players {
		if p == self {
			continue
		}
		w.PutString(p.Username())
		putRecord(w, p)
	}
	return w.CommitLength()
}
