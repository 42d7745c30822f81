package integration

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"
)

// originStub 模拟资源源站：按路径返回固定内容，并记录每次请求，供集成测试复用。
type originStub struct {
	server   *http.Server
	listener net.Listener
	URL      string

	mu       sync.Mutex
	files    map[string][]byte
	truncate map[string]int
	requests []RecordedRequest
}

// RecordedRequest 捕获每次请求的方法与路径，便于断言回源行为。
type RecordedRequest struct {
	Method string
	Path   string
}

func newOriginStub(t *testing.T, files map[string][]byte) *originStub {
	t.Helper()

	stub := &originStub{
		files:    make(map[string][]byte, len(files)),
		truncate: map[string]int{},
	}
	for p, body := range files {
		stub.files[p] = body
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start origin stub listener: %v", err)
	}
	server := &http.Server{Handler: http.HandlerFunc(stub.handle)}

	stub.server = server
	stub.listener = listener
	stub.URL = "http://" + listener.Addr().String()

	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(stub.Close)

	return stub
}

func (s *originStub) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path})
	body, ok := s.files[r.URL.Path]
	cut := s.truncate[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Last-Modified", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
	if cut > 0 && cut < len(body) {
		// 声明完整长度但只发送前 cut 字节，客户端会看到连接提前结束。
		_, _ = w.Write(body[:cut])
		return
	}
	_, _ = w.Write(body)
}

// Put 新增或替换一个源站文件。
func (s *originStub) Put(p string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = body
}

// Truncate 让 p 的响应在 n 字节后断开。
func (s *originStub) Truncate(p string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate[p] = n
}

// Hits 返回某路径被 GET 的次数。
func (s *originStub) Hits(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, req := range s.requests {
		if req.Path == p && req.Method == http.MethodGet {
			count++
		}
	}
	return count
}

func (s *originStub) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if s.server != nil {
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
