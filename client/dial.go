package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/drblury/webviewflow/internal/runtime/bus"
	"github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

// DialOptions configures Dial.
type DialOptions struct {
	// Path is the engine path on the host; defaults to config.DefaultSocketPath.
	Path string
	// NamespacePrefix precedes the webview id; defaults to
	// config.DefaultSocketNamespacePrefix.
	NamespacePrefix string
	// ConnectTimeout bounds the wait for the connect event.
	ConnectTimeout time.Duration
	Logger         logging.ServiceLogger
	BusOptions     []Option
}

const defaultConnectTimeout = 15 * time.Second

// Conn is a connected client bus. Close disposes the bus and disconnects.
type Conn struct {
	*Bus
	sock *socket.Socket
}

func (c *Conn) Close() {
	c.Bus.Dispose()
	c.sock.Disconnect()
}

// Dial connects to the host at baseURL (scheme and host only) as an
// instance of webviewID and returns a bus bound to that connection.
func Dial(ctx context.Context, baseURL string, webviewID webview.ID, opts DialOptions) (*Conn, error) {
	log := logging.OrNop(opts.Logger).With(logging.LogFields{"webview_id": string(webviewID)})

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse host url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse host url: %q needs a scheme and host", baseURL)
	}

	ioOpts := socket.DefaultOptions()
	ioOpts.SetPath(orDefault(opts.Path, config.DefaultSocketPath))
	ioOpts.SetTransports(types.NewSet(transports.WebSocket))

	namespace := strings.TrimSuffix(orDefault(opts.NamespacePrefix, config.DefaultSocketNamespacePrefix), "/") + "/" + string(webviewID)
	manager := socket.NewManager(parsed.Scheme+"://"+parsed.Host, ioOpts)
	io := manager.Socket(namespace, ioOpts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := firstArg(errs).(error)
		if err == nil {
			err = errors.New("socket.io connect error")
		}
		connected <- err
	})

	log.Debug("Connecting to webview host", logging.LogFields{"namespace": namespace})
	io.Connect()

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, ctx.Err()
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	log.Info("Connected to webview host", logging.LogFields{"socket": io.Id()})
	b, err := NewBus(newIOSocket(io), append([]Option{WithLogger(log)}, opts.BusOptions...)...)
	if err != nil {
		io.Disconnect()
		return nil, err
	}
	return &Conn{Bus: b, sock: io}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// ioSocket fans each socket.io event out through a bus so individual
// listeners can be removed without touching the library's listener list.
type ioSocket struct {
	s        *socket.Socket
	channels *bus.Bus[string, any]

	mu       sync.Mutex
	attached map[string]bool
}

func newIOSocket(s *socket.Socket) *ioSocket {
	return &ioSocket{s: s, channels: bus.New[string, any](), attached: make(map[string]bool)}
}

func (a *ioSocket) On(channel string, handler func(payload any)) disposable.Disposable {
	a.mu.Lock()
	if !a.attached[channel] {
		a.attached[channel] = true
		_ = a.s.On(types.EventName(channel), func(args ...any) {
			a.channels.Publish(channel, firstArg(args))
		})
	}
	a.mu.Unlock()
	return a.channels.Subscribe(channel, bus.Listener[any](handler))
}

func (a *ioSocket) Emit(channel string, payload any) error {
	return a.s.Emit(channel, payload)
}
