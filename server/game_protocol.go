package server

import (
	"gridclaim/arena"
	"gridclaim/protocol"
)

// putRecord u8 color, u8 cellX, i8 fracX, u8 cellY, i8 fracY, u8 direction
func putRecord(w *protocol.WriteBuffer, p *arena.Player) {
	w.PutUint8(p.Color())
	w.PutUint8(uint8(p.CellX()))
	w.PutInt8(int8(p.FracX()))
	w.PutUint8(uint8(p.CellY()))
	w.PutInt8(int8(p.FracY()))
	w.PutUint8(uint8(p.Direction()))
}

// encodeDelta 编码 p 自上次发送以来观察到的全部变化，并清空其差异状态。
// 顺序固定：added、updated、cells、trails、removed。
func encodeDelta(w *protocol.WriteBuffer, a *arena.Arena, p *arena.Player) error {
	d := p.PeekDiff()
	if err := w.StartLength(); err != nil {
		return err
	}

	w.PutInt32(int32(len(d.Added)))
	for _, o := range d.Added {
		w.PutString(o.Username())
		putRecord(w, o)
	}

	w.PutInt32(int32(len(d.Updated)))
	for _, o := range d.Updated {
		putRecord(w, o)
	}

	width := a.Width()
	w.PutBitset(d.Cells)
	for i, ok := d.Cells.NextSet(0); ok; i, ok = d.Cells.NextSet(i + 1) {
		w.PutUint8(a.Cell(int(i)%width, int(i)/width))
	}
	w.PutBitset(d.Trails)
	for i, ok := d.Trails.NextSet(0); ok; i, ok = d.Trails.NextSet(i + 1) {
		w.PutUint8(a.Trail(int(i)%width, int(i)/width))
	}

	w.PutInt32(int32(len(d.Removed)))
	for _, o := range d.Removed {
		w.PutUint8(o.Color())
	}

	err := w.CommitLength()
	p.ClearDiff()
	return err
}
