// Package client 实现协议的客户端一侧：握手、快照与增量解码，并维护一份本地竞技场镜像。
// 供测试与无界面机器人使用。
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"gridclaim/arena"
	"gridclaim/protocol"
)

// ErrSignatureMismatch 服务端回显的签名不正确
var ErrSignatureMismatch = errors.New("client: signature mismatch")

// RejectedError 服务端拒绝加入，Message 为服务端给出的提示
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return "client: join rejected: " + e.Message }

// Options 加入参数
type Options struct {
	Color      uint8
	Username   string
	Timeout    time.Duration
	BufferSize int
}

// Client 一个已完成握手的连接
type Client struct {
	conn  *protocol.Conn
	Arena *Arena
	Self  *Player

	// heading 本地想要的方向，Step 每帧回送给服务端
	heading arena.Direction
}

// Dial 建立 TCP 连接并完成握手
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return Handshake(nc, opts)
}

// Handshake 在已建立的连接上发送签名与加入帧，读取快照。失败时关闭 nc。
func Handshake(nc net.Conn, opts Options) (*Client, error) {
	c := protocol.NewConn(nc, protocol.Options{BufferSize: opts.BufferSize, Timeout: opts.Timeout})
	cl, err := handshake(c, opts)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return cl, nil
}

func handshake(c *protocol.Conn, opts Options) (*Client, error) {
	c.Out.PutUint32(protocol.Signature)
	if err := c.FlushThenRead(4); err != nil {
		return nil, err
	}
	if sig := c.In.Uint32(); sig != protocol.Signature {
		return nil, fmt.Errorf("%w: %#08x", ErrSignatureMismatch, sig)
	}

	if err := c.Out.StartLength(); err != nil {
		return nil, err
	}
	c.Out.PutUint8(opts.Color)
	c.Out.PutUTF16(opts.Username)
	if err := c.Out.CommitLength(); err != nil {
		return nil, err
	}
	if err := c.FlushThenRead(2); err != nil {
		return nil, err
	}

	if n := int(c.In.Uint16()); n > 0 {
		if err := c.Read(2 * n); err != nil {
			return nil, err
		}
		return nil, &RejectedError{Message: c.In.UTF16(n)}
	}
	n, err := c.ReadLengthPrefixed()
	if err != nil {
		return nil, err
	}
	frame := c.In.Next(n)
	a, self, err := DecodeSnapshot(&frame, opts.Color, opts.Username)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c, Arena: a, Self: self, heading: self.Direction}, nil
}

// Ready 通知服务端开始移动
func (c *Client) Ready() error {
	c.conn.Out.PutUint8(1)
	return c.conn.Flush()
}

// Steer 发送方向意图，在服务端的下一次 Tick 生效
func (c *Client) Steer(d arena.Direction) error {
	c.heading = d
	c.conn.Out.PutUint8(uint8(d))
	return c.conn.Flush()
}

// Next 读取并应用一帧增量
func (c *Client) Next() (Delta, error) {
	n, err := c.conn.ReadLengthPrefixed()
	if err != nil {
		return Delta{}, err
	}
	frame := c.conn.In.Next(n)
	d, err := DecodeDelta(&frame)
	if err != nil {
		return Delta{}, err
	}
	c.Arena.Apply(d)
	return d, nil
}

// Step 读取一帧增量后回送当前方向。服务端游戏阶段的读操作有超时，
// 每帧回送一次方向字节可以让一直不转向的玩家保持在线
func (c *Client) Step() (Delta, error) {
	d, err := c.Next()
	if err != nil {
		return d, err
	}
	return d, c.Steer(c.heading)
}

// Close 关闭连接
func (c *Client) Close() error { return c.conn.Close() }
