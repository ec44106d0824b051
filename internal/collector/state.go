package collector

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"screencapture/internal/protocol"
)

var (
	ErrAgentNotConnected = errors.New("collector: agent not connected")
	ErrAgentGone         = errors.New("collector: agent disconnected")
	ErrAgentTimeout      = errors.New("collector: agent did not respond in time")
)

// AgentInfo 为 /agents 返回的连接摘要
type AgentInfo struct {
	DeviceID    string    `json:"device_id"`
	Hostname    string    `json:"hostname"`
	Platform    string    `json:"platform"`
	Addr        string    `json:"addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// session 为一个已认证的 agent 连接。读循环独占 conn 的读端，
// call 在 callMu 下写请求并等待读循环交回的响应，同一 agent 同时只有一个请求在途。
type session struct {
	info      AgentInfo
	conn      net.Conn
	callMu    sync.Mutex
	responses chan protocol.Response
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(info AgentInfo, conn net.Conn) *session {
	return &session{
		info:      info,
		conn:      conn,
		responses: make(chan protocol.Response, 1),
		done:      make(chan struct{}),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// readLoop 把 agent 上报的响应交给等待中的 call，连接断开时返回
func (s *session) readLoop() error {
	defer s.close()
	for {
		var resp protocol.Response
		if err := protocol.ReadMessage(s.conn, &resp); err != nil {
			return err
		}
		select {
		case s.responses <- resp:
		case <-s.done:
			return nil
		}
	}
}

// call 超时或出错后关闭连接，避免迟到的响应串到下一个请求
func (s *session) call(ctx context.Context, req protocol.Request, timeout time.Duration) (protocol.Response, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	select {
	case <-s.done:
		return protocol.Response{}, ErrAgentGone
	default:
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := protocol.WriteMessage(s.conn, req); err != nil {
		s.close()
		return protocol.Response{}, ErrAgentGone
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-s.responses:
		return resp, nil
	case <-s.done:
		return protocol.Response{}, ErrAgentGone
	case <-timer.C:
		s.close()
		return protocol.Response{}, ErrAgentTimeout
	case <-ctx.Done():
		s.close()
		return protocol.Response{}, ctx.Err()
	}
}

// registry 按 device id 保存在线 agent；同一设备重连时替换旧连接
type registry struct {
	mu     sync.Mutex
	agents map[string]*session
}

func newRegistry() *registry {
	return &registry{agents: make(map[string]*session)}
}

func (r *registry) add(s *session) {
	r.mu.Lock()
	old := r.agents[s.info.DeviceID]
	r.agents[s.info.DeviceID] = s
	r.mu.Unlock()
	if old != nil {
		old.close()
	}
}

// remove 只删除仍是同一连接的条目
func (r *registry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.agents[s.info.DeviceID] == s {
		delete(r.agents, s.info.DeviceID)
	}
}

func (r *registry) get(deviceID string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.agents[deviceID]
	return s, ok
}

func (r *registry) list() []AgentInfo {
	r.mu.Lock()
	out := make([]AgentInfo, 0, len(r.agents))
	for _, s := range r.agents {
		out = append(out, s.info)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (r *registry) closeAll() {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.agents))
	for _, s := range r.agents {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}
