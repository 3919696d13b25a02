package server

import "gridclaim/arena"

// inputKind 连接协程提交给模拟协程的意图类型
type inputKind int

const (
	inputDirection inputKind = iota
	inputReady
)

// Input 客户端输入（意图），由模拟协程在下一次 Tick 开始时应用
type Input struct {
	sess      *session
	Kind      inputKind
	Direction arena.Direction
}

// joinRequest 握手中的加入请求，由模拟协程执行 AddPlayer 并编码快照
type joinRequest struct {
	sess     *session
	color    uint8
	username string
	reply    chan arena.AddResult
}

// query 在模拟协程上执行的只读访问
type query struct {
	fn   func(a *arena.Arena)
	done chan struct{}
}
