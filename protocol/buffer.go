package protocol

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/bits-and-blooms/bitset"
)

// DefaultBufferSize 足以容纳最大的单帧（完整竞技场握手快照）
const DefaultBufferSize = 32768

// ReadBuffer 固定容量的读窗口：buf[pos:lim] 为尚未消费的数据
type ReadBuffer struct {
	buf []byte
	pos int
	lim int
	err error
}

// NewReader 以 data 作为已缓冲数据构造读窗口（不拷贝）
func NewReader(data []byte) *ReadBuffer {
	return &ReadBuffer{buf: data, lim: len(data)}
}

func newReadBuffer(size int) ReadBuffer {
	return ReadBuffer{buf: make([]byte, size)}
}

// Remaining 返回尚未消费的字节数
func (r *ReadBuffer) Remaining() int { return r.lim - r.pos }

// Err 返回第一次越界读取产生的错误
func (r *ReadBuffer) Err() error { return r.err }

func (r *ReadBuffer) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.lim-r.pos < n {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Next 返回长度为 n 的子窗口并跳过这些字节，用于把一帧的解码限制在帧边界内
func (r *ReadBuffer) Next(n int) ReadBuffer {
	b := r.take(n)
	if b == nil {
		return ReadBuffer{err: r.err}
	}
	return ReadBuffer{buf: b, lim: len(b)}
}

func (r *ReadBuffer) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *ReadBuffer) Int8() int8 { return int8(r.Uint8()) }

func (r *ReadBuffer) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *ReadBuffer) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *ReadBuffer) Int32() int32 { return int32(r.Uint32()) }

// Bytes 返回接下来 n 个字节的拷贝
func (r *ReadBuffer) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// UTF16Units 读取 n 个 UTF-16 码元（不做解码，便于逐字符校验）
func (r *ReadBuffer) UTF16Units(n int) []uint16 {
	b := r.take(2 * n)
	if b == nil {
		return nil
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return units
}

// UTF16 读取 n 个 UTF-16 码元并解码为字符串
func (r *ReadBuffer) UTF16(n int) string {
	return string(utf16.Decode(r.UTF16Units(n)))
}

// String 读取 u16 字符数 + UTF-16 字符串
func (r *ReadBuffer) String() string {
	return r.UTF16(int(r.Uint16()))
}

// Bitset 读取 u16 字节数 + 小端位序的位图
func (r *ReadBuffer) Bitset() *bitset.BitSet {
	n := int(r.Uint16())
	b := r.take(n)
	if b == nil {
		return bitset.New(0)
	}
	words := make([]uint64, (n+7)/8)
	for i, v := range b {
		words[i/8] |= uint64(v) << (8 * uint(i%8))
	}
	return bitset.From(words)
}

// WriteBuffer 固定容量的写缓冲区，支持回填长度前缀
type WriteBuffer struct {
	buf      []byte
	lenStart int
	err      error
}

// NewWriter 构造容量为 size 的写缓冲区
func NewWriter(size int) *WriteBuffer {
	w := newWriteBuffer(size)
	return &w
}

func newWriteBuffer(size int) WriteBuffer {
	return WriteBuffer{buf: make([]byte, 0, size), lenStart: -1}
}

// Len 返回待发送的字节数
func (w *WriteBuffer) Len() int { return len(w.buf) }

// Bytes 返回待发送的数据（在下一次写入前有效）
func (w *WriteBuffer) Bytes() []byte { return w.buf }

// Err 返回第一次溢出或长度区间误用产生的错误
func (w *WriteBuffer) Err() error { return w.err }

// Reset 清空缓冲区与错误状态
func (w *WriteBuffer) Reset() {
	w.buf = w.buf[:0]
	w.lenStart = -1
	w.err = nil
}

func (w *WriteBuffer) grow(n int) []byte {
	if w.err != nil {
		return nil
	}
	if len(w.buf)+n > cap(w.buf) {
		w.err = ErrBufferOverflow
		return nil
	}
	start := len(w.buf)
	w.buf = w.buf[:start+n]
	return w.buf[start:]
}

func (w *WriteBuffer) PutUint8(v uint8) {
	if b := w.grow(1); b != nil {
		b[0] = v
	}
}

func (w *WriteBuffer) PutInt8(v int8) { w.PutUint8(uint8(v)) }

func (w *WriteBuffer) PutUint16(v uint16) {
	if b := w.grow(2); b != nil {
		binary.BigEndian.PutUint16(b, v)
	}
}

func (w *WriteBuffer) PutUint32(v uint32) {
	if b := w.grow(4); b != nil {
		binary.BigEndian.PutUint32(b, v)
	}
}

func (w *WriteBuffer) PutInt32(v int32) { w.PutUint32(uint32(v)) }

// PutUTF16 写入字符串的 UTF-16 码元（不带长度）
func (w *WriteBuffer) PutUTF16(s string) {
	for _, u := range utf16.Encode([]rune(s)) {
		w.PutUint16(u)
	}
}

// PutString 写入 u16 码元数 + UTF-16 字符串
func (w *WriteBuffer) PutString(s string) {
	units := utf16.Encode([]rune(s))
	w.PutUint16(uint16(len(units)))
	for _, u := range units {
		w.PutUint16(u)
	}
}

// PutBitset 写入 u16 字节数 + 小端位序的位图，末尾的 0 字节被裁掉
func (w *WriteBuffer) PutBitset(bs *bitset.BitSet) {
	words := bs.Words()
	n := 0
	for i := len(words) - 1; i >= 0; i-- {
		if words[i] == 0 {
			continue
		}
		n = i*8 + 8
		for words[i]>>(8*uint((n-1)%8)) == 0 {
			n--
		}
		break
	}
	w.PutUint16(uint16(n))
	b := w.grow(n)
	if b == nil {
		return
	}
	for i := range b {
		b[i] = byte(words[i/8] >> (8 * uint(i%8)))
	}
}

// StartLength 预留 2 字节，随后由 CommitLength 回填负载长度
func (w *WriteBuffer) StartLength() error {
	if w.lenStart != -1 {
		return ErrLengthOpen
	}
	w.lenStart = len(w.buf)
	w.grow(2)
	return w.err
}

// CommitLength 回填自 StartLength 以来写入的负载长度（不含前缀本身）。
// 负载超过 65535 字节时返回 ErrLengthTooLarge，并与溢出一样粘在缓冲区上
func (w *WriteBuffer) CommitLength() error {
	if w.lenStart == -1 {
		return ErrLengthNotOpen
	}
	start := w.lenStart
	w.lenStart = -1
	if w.err != nil {
		return w.err
	}
	n := len(w.buf) - start - 2
	if n > math.MaxUint16 {
		w.err = ErrLengthTooLarge
		return w.err
	}
	binary.BigEndian.PutUint16(w.buf[start:], uint16(n))
	return nil
}
