package ext

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/guesthost/internal/hostapi"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

const wsAPI = "host.ws.connect"

// WebSocket exposes host.ws.connect. The URL is checked like a fetch
// target; the connection is closed when the runtime closes.
type WebSocket struct {
	perms  hostapi.FetchPermissions
	dialer *websocket.Dialer
}

func NewWebSocket(perms hostapi.FetchPermissions, handshakeTimeout time.Duration) *WebSocket {
	return &WebSocket{
		perms: perms,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (w *WebSocket) Name() string { return "ws" }

func (w *WebSocket) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	ns, err := namespace(vm, "ws")
	if err != nil {
		return err
	}
	return ns.Set("connect", func(call goja.FunctionCall) goja.Value {
		target := stringArg(vm, call, 0, "url")
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			panic(vm.NewTypeError("invalid WebSocket URL %q", target))
		}
		return async(rt, vm, wsAPI,
			func(ctx context.Context) (*socket, error) {
				return w.connect(ctx, u)
			},
			func(vm *goja.Runtime, s *socket) (goja.Value, error) {
				return s.object(rt, vm)
			},
		)
	})
}

func (w *WebSocket) connect(ctx context.Context, u *url.URL) (*socket, error) {
	if err := w.perms.CheckNetURL(u, wsAPI); err != nil {
		return nil, err
	}
	conn, resp, err := w.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	s := &socket{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()
	return s, nil
}

// socket serializes readers and writers; gorilla allows one of each
type socket struct {
	conn    *websocket.Conn
	readMu  sync.Mutex
	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func (s *socket) send(text string) (struct{}, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return struct{}{}, s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// receive returns the next message, or nil after a normal close
func (s *socket) receive() (*string, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, nil
		}
		select {
		case <-s.done:
			return nil, nil
		default:
		}
		return nil, err
	}
	msg := string(data)
	return &msg, nil
}

func (s *socket) close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) && err == nil {
			err = werr
		}
	})
	return err
}

func (s *socket) object(rt *sandbox.Runtime, vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	err := obj.Set("send", func(call goja.FunctionCall) goja.Value {
		text := stringArg(vm, call, 0, "data")
		return async(rt, vm, "host.ws.send",
			func(context.Context) (struct{}, error) { return s.send(text) },
			func(*goja.Runtime, struct{}) (goja.Value, error) { return goja.Undefined(), nil },
		)
	})
	if err != nil {
		return nil, err
	}
	err = obj.Set("receive", func(goja.FunctionCall) goja.Value {
		return async(rt, vm, "host.ws.receive",
			func(context.Context) (*string, error) { return s.receive() },
			func(vm *goja.Runtime, msg *string) (goja.Value, error) {
				if msg == nil {
					return goja.Null(), nil
				}
				return vm.ToValue(*msg), nil
			},
		)
	})
	if err != nil {
		return nil, err
	}
	err = obj.Set("close", func(goja.FunctionCall) goja.Value {
		record(rt, vm, "host.ws.close", s.close())
		return goja.Undefined()
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
