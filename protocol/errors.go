// Package protocol 实现基于长度前缀的二进制帧 I/O：固定容量的读写缓冲区、
// 部分读写的拼接，以及每次套接字操作的超时控制。
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrShortBuffer 读取越过了当前已缓冲（或当前帧）的数据
	ErrShortBuffer = errors.New("protocol: read past buffered data")
	// ErrBufferOverflow 写入超过写缓冲区容量
	ErrBufferOverflow = errors.New("protocol: write buffer overflow")
	// ErrLengthOpen StartLength 在上一次长度区间未提交时被再次调用
	ErrLengthOpen = errors.New("protocol: length prefix already open")
	// ErrLengthNotOpen CommitLength 在没有打开长度区间时被调用
	ErrLengthNotOpen = errors.New("protocol: length prefix not open")
	// ErrLengthTooLarge 长度区间内的负载超出 u16 前缀的表示范围
	ErrLengthTooLarge = errors.New("protocol: length-prefixed payload exceeds 65535 bytes")
	// ErrPeerClosed 对端半关闭或读到 0 字节
	ErrPeerClosed = errors.New("protocol: peer closed connection")
	// ErrClosed 连接已经被本端关闭
	ErrClosed = errors.New("protocol: connection closed")
)

// CapacityError 请求的最小字节数超过缓冲区总容量
type CapacityError struct {
	Requested int
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("protocol: data size %d is larger than buffer size %d", e.Requested, e.Capacity)
}

// Signature 连接建立后客户端发送的第一个 u32
const Signature uint32 = 0xdf32a68c
