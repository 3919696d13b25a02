package protocol

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultTimeout 每一次底层读/写操作的超时上限
const DefaultTimeout = 5 * time.Second

// Conn 把一个字节流包装成帧 I/O：一个读缓冲、一个写缓冲，以及进行中的读游标状态。
// 读路径与写路径各自只允许一个调用方，二者可以并发。
type Conn struct {
	nc      net.Conn
	timeout time.Duration

	In  ReadBuffer
	Out WriteBuffer

	// 长度前缀已解析、正在等待负载到达时的长度
	pendingLength int

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// Options 连接参数，零值使用默认值
type Options struct {
	BufferSize int
	Timeout    time.Duration
}

// NewConn 包装 nc，读写缓冲在连接生命周期内复用
func NewConn(nc net.Conn, opts Options) *Conn {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Conn{
		nc:      nc,
		timeout: opts.Timeout,
		In:      newReadBuffer(opts.BufferSize),
		Out:     newWriteBuffer(opts.BufferSize),
		closed:  make(chan struct{}),
	}
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Read 保证从稳定的读游标开始至少有 min 个连续未消费字节。
// 已缓冲的数据优先复用；尾部空间不够时先压缩（未读数据移到偏移 0）。
func (c *Conn) Read(min int) error {
	r := &c.In
	if r.lim-r.pos >= min {
		return nil
	}
	size := len(r.buf)
	switch {
	case size-r.pos >= min:
	case min <= size:
		n := copy(r.buf, r.buf[r.pos:r.lim])
		r.pos, r.lim = 0, n
	default:
		return &CapacityError{Requested: min, Capacity: size}
	}
	for r.lim-r.pos < min {
		if err := c.nc.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return c.fail(err)
		}
		n, err := c.nc.Read(r.buf[r.lim:])
		if n > 0 {
			r.lim += n
			continue
		}
		if err == nil {
			err = ErrPeerClosed
		}
		return c.fail(fmt.Errorf("still need %d bytes to read: %w", min-(r.lim-r.pos), err))
	}
	return nil
}

// ReadLengthPrefixed 读取 u16 长度，随后保证负载已全部缓冲。
// 长度为 0 时立即返回，不再进行 I/O。
func (c *Conn) ReadLengthPrefixed() (int, error) {
	if c.pendingLength <= 0 {
		if err := c.Read(2); err != nil {
			return 0, err
		}
		length := int(c.In.Uint16())
		if length <= 0 {
			return length, nil
		}
		c.pendingLength = length
	}
	length := c.pendingLength
	if err := c.Read(length); err != nil {
		return 0, err
	}
	c.pendingLength = 0
	return length, nil
}

// Flush 把写缓冲中的全部数据写入连接，部分写入会重新发起，完成后清空缓冲区。
// 缓冲区为空时同样走完这一流程。
func (c *Conn) Flush() error {
	w := &c.Out
	if w.err != nil {
		err := w.err
		w.Reset()
		return c.fail(err)
	}
	if w.lenStart != -1 {
		w.Reset()
		return c.fail(ErrLengthOpen)
	}
	data := w.buf
	for len(data) > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return c.fail(err)
		}
		n, err := c.nc.Write(data)
		data = data[n:]
		if err != nil {
			return c.fail(fmt.Errorf("still need %d bytes to write: %w", len(data), err))
		}
	}
	w.Reset()
	return nil
}

// FlushThenRead 写完后紧接着发起一次读取，用于握手中“回复后等待下一步”的衔接
func (c *Conn) FlushThenRead(min int) error {
	if err := c.Flush(); err != nil {
		return err
	}
	return c.Read(min)
}

// Close 关闭底层连接，可重复调用
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// Done 在连接关闭后被关闭
func (c *Conn) Done() <-chan struct{} { return c.closed }

// 任何传输失败都是致命的：关闭连接，不重试
func (c *Conn) fail(err error) error {
	select {
	case <-c.closed:
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	default:
	}
	_ = c.Close()
	return err
}
