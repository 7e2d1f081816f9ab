package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/drblury/webviewflow/internal/runtime/bus"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	"github.com/drblury/webviewflow/internal/runtime/logging"
)

// NotificationHandler receives the raw params of an inbound notification.
type NotificationHandler func(params json.RawMessage)

// Connection is the part of a JSON-RPC peer connection the transport uses.
type Connection interface {
	OnNotification(method string, handler NotificationHandler) disposable.Disposable
	Notify(ctx context.Context, method string, params any) error
}

// Conn adapts a jsonrpc2 connection with VS Code style framing
// (Content-Length headers) to Connection.
type Conn struct {
	rpc      *jsonrpc2.Conn
	handlers *bus.Bus[string, json.RawMessage]
	log      logging.ServiceLogger
}

// NewConn starts reading from rwc. Inbound calls (as opposed to
// notifications) are answered with a method-not-found error because the
// webview protocol is notification only.
func NewConn(ctx context.Context, rwc io.ReadWriteCloser, log logging.ServiceLogger) *Conn {
	c := &Conn{
		handlers: bus.New[string, json.RawMessage](),
		log:      logging.OrNop(log),
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	handler := jsonrpc2.HandlerWithError(c.handle).SuppressErrClosed()
	c.rpc = jsonrpc2.NewConn(ctx, stream, handler, jsonrpc2.SetLogger(printfLogger{log: c.log}))
	return c
}

func (c *Conn) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if !req.Notif {
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("method not supported: %s", req.Method),
		}
	}
	if !c.handlers.HasListeners(req.Method) {
		c.log.Debug("Ignoring notification without handler", logging.LogFields{"method": req.Method})
		return nil, nil
	}
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}
	c.handlers.Publish(req.Method, params)
	return nil, nil
}

func (c *Conn) OnNotification(method string, handler NotificationHandler) disposable.Disposable {
	if handler == nil {
		return disposable.Nop
	}
	return c.handlers.Subscribe(method, bus.Listener[json.RawMessage](handler))
}

func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	return c.rpc.Notify(ctx, method, params)
}

// DisconnectNotify is closed when the underlying stream goes away.
func (c *Conn) DisconnectNotify() <-chan struct{} {
	return c.rpc.DisconnectNotify()
}

func (c *Conn) Close() error {
	c.handlers.Dispose()
	return c.rpc.Close()
}

type printfLogger struct {
	log logging.ServiceLogger
}

func (p printfLogger) Printf(format string, v ...any) {
	p.log.Debug(fmt.Sprintf(format, v...), logging.LogFields{"component": "jsonrpc2"})
}

// stdio joins the process standard streams into one connection, the way an
// editor launches a language-server style host.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdio) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
