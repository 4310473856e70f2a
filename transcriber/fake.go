package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Script drives one fake session after the handshake has been consumed.
type Script func(ctx context.Context, c *FakeConn)

// FakeServer is an in-process transcription endpoint for tests and the
// integration harness. Each accepted connection reads the config message and
// the priming frame, then hands control to the script while a background
// reader counts audio.
type FakeServer struct {
	srv    *httptest.Server
	script Script

	mu        sync.Mutex
	sessions  int
	configs   []Config
	priming   []int
	audio     int
	rawConfig []string
}

func NewFakeServer(script Script) *FakeServer {
	f := &FakeServer{script: script}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL is the ws:// endpoint of the server.
func (f *FakeServer) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *FakeServer) Close() { f.srv.Close() }

func (f *FakeServer) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *FakeServer) Configs() []Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Config(nil), f.configs...)
}

// RawConfigs returns the config messages exactly as received.
func (f *FakeServer) RawConfigs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rawConfig...)
}

// PrimingSizes returns the byte length of the first binary message per session.
func (f *FakeServer) PrimingSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.priming...)
}

// AudioBytes counts audio received after the priming frame, all sessions.
func (f *FakeServer) AudioBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audio
}

func (f *FakeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil || typ != websocket.MessageText {
		return
	}
	var cfg Config
	json.Unmarshal(data, &cfg)
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.rawConfig = append(f.rawConfig, string(data))
	f.mu.Unlock()

	_, data, err = conn.Read(ctx)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.priming = append(f.priming, len(data))
	f.mu.Unlock()

	fc := &FakeConn{conn: conn, Config: cfg, closed: make(chan struct{}), firstAudio: make(chan struct{})}
	go fc.readAudio(ctx, f)

	if f.script != nil {
		f.script(ctx, fc)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// FakeConn is the server side of one fake session.
type FakeConn struct {
	conn   *websocket.Conn
	Config Config

	closed     chan struct{}
	firstAudio chan struct{}
	audioOnce  sync.Once
}

func (c *FakeConn) readAudio(ctx context.Context, f *FakeServer) {
	defer close(c.closed)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		c.audioOnce.Do(func() { close(c.firstAudio) })
		f.mu.Lock()
		f.audio += len(data)
		f.mu.Unlock()
	}
}

// Send writes one response message.
func (c *FakeConn) Send(ctx context.Context, r Response) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// SendRaw writes a text message verbatim.
func (c *FakeConn) SendRaw(ctx context.Context, msg string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(msg))
}

// FirstAudio is closed when the first captured frame arrives.
func (c *FakeConn) FirstAudio() <-chan struct{} { return c.firstAudio }

// ClientClosed is closed once the client has closed the connection.
func (c *FakeConn) ClientClosed() <-chan struct{} { return c.closed }

// Drop closes the TCP connection without a close handshake.
func (c *FakeConn) Drop() { c.conn.CloseNow() }

// WaitClose blocks until the client closes or ctx ends.
func (c *FakeConn) WaitClose(ctx context.Context) {
	select {
	case <-c.closed:
	case <-ctx.Done():
	}
}

// FinalTokens builds a batch of final tokens.
func FinalTokens(texts ...string) []Token {
	out := make([]Token, len(texts))
	for i, t := range texts {
		out[i] = Token{Text: t, IsFinal: true}
	}
	return out
}

// PendingTokens builds a batch of non-final tokens.
func PendingTokens(texts ...string) []Token {
	out := make([]Token, len(texts))
	for i, t := range texts {
		out[i] = Token{Text: t}
	}
	return out
}

// ReplyScript sends each batch once audio starts flowing, then waits for the
// client to close.
func ReplyScript(batches ...[]Token) Script {
	return func(ctx context.Context, c *FakeConn) {
		select {
		case <-c.FirstAudio():
		case <-c.ClientClosed():
			return
		case <-ctx.Done():
			return
		}
		for _, b := range batches {
			if err := c.Send(ctx, Response{Tokens: b}); err != nil {
				return
			}
		}
		c.WaitClose(ctx)
	}
}

// ErrorScript reports a remote error right after the handshake.
func ErrorScript(code int, message string) Script {
	return func(ctx context.Context, c *FakeConn) {
		c.Send(ctx, Response{ErrorCode: &code, ErrorMessage: &message})
		c.WaitClose(ctx)
	}
}
