package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/ids"
	"github.com/drblury/webviewflow/internal/runtime/logging/logtest"
	"github.com/drblury/webviewflow/internal/runtime/webview"
)

var (
	chatA = webview.Address{WebviewID: "chat", WebviewInstanceID: "a"}
	chatB = webview.Address{WebviewID: "chat", WebviewInstanceID: "b"}
)

// outbox collects plugin:* events the way a mediator would see them.
type outbox struct {
	mu       sync.Mutex
	messages map[webview.RuntimeEvent][]webview.Message
	notify   chan webview.Message
}

func watchOutbound(rb *webview.RuntimeBus) *outbox {
	o := &outbox{messages: make(map[webview.RuntimeEvent][]webview.Message), notify: make(chan webview.Message, 16)}
	for _, event := range []webview.RuntimeEvent{webview.PluginNotification, webview.PluginRequest, webview.PluginResponse} {
		event := event
		rb.Subscribe(event, func(msg webview.Message) {
			o.mu.Lock()
			o.messages[event] = append(o.messages[event], msg)
			o.mu.Unlock()
			o.notify <- msg
		})
	}
	return o
}

func (o *outbox) get(event webview.RuntimeEvent) []webview.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]webview.Message(nil), o.messages[event]...)
}

func (o *outbox) next(t *testing.T) webview.Message {
	t.Helper()
	select {
	case msg := <-o.notify:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return webview.Message{}
	}
}

func newTestHost(t *testing.T, opts Options) (*Host, *webview.RuntimeBus) {
	t.Helper()
	rb := webview.NewRuntimeBus()
	h, err := NewHost(rb, opts)
	require.NoError(t, err)
	t.Cleanup(h.Dispose)
	return h, rb
}

func TestNewHostRequiresBus(t *testing.T) {
	_, err := NewHost(nil, Options{})
	assert.ErrorIs(t, err, errspkg.ErrRuntimeBusRequired)
}

func TestRegisterRejectsDuplicateWebview(t *testing.T) {
	h, _ := newTestHost(t, Options{})

	_, err := h.Register("chat")
	require.NoError(t, err)
	_, err = h.Register("chat")
	assert.ErrorIs(t, err, errspkg.ErrWebviewRegistered)
}

func TestInstanceLifecycle(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	p, err := h.Register("chat")
	require.NoError(t, err)

	var connected, disconnected []webview.Address
	p.OnInstanceConnected(func(addr webview.Address, mb webview.MessageBus) {
		connected = append(connected, addr)
		assert.NotNil(t, mb)
	})
	p.OnInstanceDisconnected(func(addr webview.Address) {
		disconnected = append(disconnected, addr)
	})

	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatB))
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(webview.Address{WebviewID: "other", WebviewInstanceID: "x"}))

	assert.Equal(t, []webview.Address{chatA, chatB}, connected)
	assert.Equal(t, []webview.Address{chatA, chatB}, p.Instances())

	rb.Publish(webview.RuntimeDisconnect, webview.Lifecycle(chatA))
	assert.Equal(t, []webview.Address{chatA}, disconnected)
	assert.Equal(t, []webview.Address{chatB}, h.Instances())
}

func TestInstanceSendNotificationIsAddressed(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	out := watchOutbound(rb)
	p, err := h.Register("chat")
	require.NoError(t, err)

	p.OnInstanceConnected(func(_ webview.Address, mb webview.MessageBus) {
		assert.NoError(t, mb.SendNotification(context.Background(), "welcome", map[string]any{"n": 1}))
	})
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))

	sent := out.get(webview.PluginNotification)
	require.Len(t, sent, 1)
	assert.Equal(t, chatA, sent[0].Address)
	assert.Equal(t, "welcome", sent[0].Type)
}

func TestInstanceSendRequestResolves(t *testing.T) {
	h, rb := newTestHost(t, Options{RequestIDs: ids.Sequence("req-1")})
	out := watchOutbound(rb)
	p, err := h.Register("chat")
	require.NoError(t, err)

	buses := make(chan webview.MessageBus, 1)
	p.OnInstanceConnected(func(_ webview.Address, mb webview.MessageBus) { buses <- mb })
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	mb := <-buses

	result := make(chan any, 1)
	go func() {
		v, err := mb.SendRequest(context.Background(), "getTheme", nil)
		assert.NoError(t, err)
		result <- v
	}()

	req := out.next(t)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, chatA, req.Address)

	rb.Publish(webview.RuntimeResponse, webview.SuccessResponse(chatA, "getTheme", "req-1", "dark"))
	// A duplicate response is ignored.
	rb.Publish(webview.RuntimeResponse, webview.SuccessResponse(chatA, "getTheme", "req-1", "light"))

	assert.Equal(t, "dark", <-result)
	assert.Zero(t, h.PendingRequests())
}

func TestInstanceSendRequestFailureAndTimeout(t *testing.T) {
	h, rb := newTestHost(t, Options{RequestTimeout: 20 * time.Millisecond, RequestIDs: ids.Sequence("r1", "r2")})
	out := watchOutbound(rb)
	p, err := h.Register("chat")
	require.NoError(t, err)

	buses := make(chan webview.MessageBus, 1)
	p.OnInstanceConnected(func(_ webview.Address, mb webview.MessageBus) { buses <- mb })
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	mb := <-buses

	errs := make(chan error, 1)
	go func() {
		_, err := mb.SendRequest(context.Background(), "save", nil)
		errs <- err
	}()
	out.next(t)
	rb.Publish(webview.RuntimeResponse, webview.FailureResponse(chatA, "save", "r1", "disk full"))

	var failed *errspkg.RequestFailedError
	require.ErrorAs(t, <-errs, &failed)
	assert.Equal(t, "disk full", failed.Reason)

	_, err = mb.SendRequest(context.Background(), "save", nil)
	assert.ErrorIs(t, err, errspkg.ErrRequestTimedOut)
	assert.EqualError(t, err, "Request timed out")
}

func TestNotificationDispatchPrefersInstanceHandler(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	p, err := h.Register("chat")
	require.NoError(t, err)

	var calls []string
	p.OnNotification("ping", func(_ context.Context, payload any) error {
		calls = append(calls, "plugin")
		return nil
	})
	registered := false
	p.OnInstanceConnected(func(addr webview.Address, mb webview.MessageBus) {
		if addr == chatA && !registered {
			registered = true
			mb.OnNotification("ping", func(_ context.Context, payload any) error {
				calls = append(calls, "instance:"+payload.(string))
				return nil
			})
		}
	})

	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatB))

	rb.Publish(webview.RuntimeNotification, webview.Notification(chatA, "ping", "x"))
	rb.Publish(webview.RuntimeNotification, webview.Notification(chatB, "ping", "y"))

	assert.Equal(t, []string{"instance:x", "plugin"}, calls)

	// Instance handlers go away with the instance.
	rb.Publish(webview.RuntimeDisconnect, webview.Lifecycle(chatA))
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	rb.Publish(webview.RuntimeNotification, webview.Notification(chatA, "ping", "z"))
	assert.Equal(t, []string{"instance:x", "plugin", "plugin"}, calls)
}

func TestNotificationHandlerErrorIsLogged(t *testing.T) {
	rec := logtest.New()
	h, rb := newTestHost(t, Options{Logger: rec})
	p, err := h.Register("chat")
	require.NoError(t, err)

	p.OnNotification("ping", func(context.Context, any) error { return errors.New("boom") })
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	rb.Publish(webview.RuntimeNotification, webview.Notification(chatA, "ping", nil))
	rb.Publish(webview.RuntimeNotification, webview.Notification(chatA, "unknown", nil))

	_, ok := rec.Find("error", "Notification handler failed")
	assert.True(t, ok)
	_, ok = rec.Find("warn", "No handler for notification")
	assert.True(t, ok)
}

func TestRequestIsAnsweredWithPluginResponse(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	out := watchOutbound(rb)
	p, err := h.Register("chat")
	require.NoError(t, err)

	p.OnRequest("add", func(_ context.Context, payload any) (any, error) {
		args := payload.(map[string]any)
		return args["a"].(float64) + args["b"].(float64), nil
	})
	p.OnRequest("fail", func(context.Context, any) (any, error) {
		return nil, errors.New("nope")
	})
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))

	rb.Publish(webview.RuntimeRequest, webview.Request(chatA, "add", "r1", map[string]any{"a": 1.0, "b": 2.0}))
	resp := out.next(t)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, chatA, resp.Address)
	assert.True(t, resp.Succeeded())
	assert.Equal(t, 3.0, resp.Payload)

	rb.Publish(webview.RuntimeRequest, webview.Request(chatA, "fail", "r2", nil))
	resp = out.next(t)
	assert.False(t, resp.Succeeded())
	assert.Equal(t, "nope", resp.Reason)

	rb.Publish(webview.RuntimeRequest, webview.Request(chatA, "missing", "r3", nil))
	resp = out.next(t)
	assert.False(t, resp.Succeeded())
	assert.Equal(t, `no handler for request type "missing"`, resp.Reason)
}

func TestRequestsFromUnknownInstancesAreIgnored(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	out := watchOutbound(rb)
	p, err := h.Register("chat")
	require.NoError(t, err)
	p.OnRequest("add", func(context.Context, any) (any, error) { return 1, nil })

	rb.Publish(webview.RuntimeRequest, webview.Request(chatA, "add", "r1", nil))

	select {
	case msg := <-out.notify:
		t.Fatalf("unexpected outbound message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedInstanceBusRejectsSends(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	p, err := h.Register("chat")
	require.NoError(t, err)

	buses := make(chan webview.MessageBus, 1)
	p.OnInstanceConnected(func(_ webview.Address, mb webview.MessageBus) { buses <- mb })
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	mb := <-buses
	rb.Publish(webview.RuntimeDisconnect, webview.Lifecycle(chatA))

	assert.ErrorIs(t, mb.SendNotification(context.Background(), "x", nil), errspkg.ErrInstanceClosed)
	_, err = mb.SendRequest(context.Background(), "x", nil)
	assert.ErrorIs(t, err, errspkg.ErrInstanceClosed)
}

func TestPluginDisposeReleasesWebview(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	p, err := h.Register("chat")
	require.NoError(t, err)

	calls := 0
	p.OnNotification("ping", func(context.Context, any) error { calls++; return nil })
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))

	p.Dispose()
	p.Dispose()

	assert.Empty(t, h.Instances())
	rb.Publish(webview.RuntimeNotification, webview.Notification(chatA, "ping", nil))
	assert.Zero(t, calls)

	_, err = h.Register("chat")
	assert.NoError(t, err)
}

func TestPluginBroadcast(t *testing.T) {
	h, rb := newTestHost(t, Options{})
	out := watchOutbound(rb)
	p, err := h.Register("chat")
	require.NoError(t, err)

	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatB))
	require.NoError(t, p.Broadcast(context.Background(), "refresh", nil))

	sent := out.get(webview.PluginNotification)
	require.Len(t, sent, 2)
	assert.Equal(t, chatA, sent[0].Address)
	assert.Equal(t, chatB, sent[1].Address)
}

func TestHostDisposeFailsPendingRequests(t *testing.T) {
	rb := webview.NewRuntimeBus()
	h, err := NewHost(rb, Options{})
	require.NoError(t, err)
	out := watchOutbound(rb)
	p, err := h.Register("chat")
	require.NoError(t, err)

	buses := make(chan webview.MessageBus, 1)
	p.OnInstanceConnected(func(_ webview.Address, mb webview.MessageBus) { buses <- mb })
	rb.Publish(webview.RuntimeConnect, webview.Lifecycle(chatA))
	mb := <-buses

	errs := make(chan error, 1)
	go func() {
		_, err := mb.SendRequest(context.Background(), "slow", nil)
		errs <- err
	}()
	out.next(t)

	h.Dispose()
	h.Dispose()
	assert.ErrorIs(t, <-errs, errspkg.ErrDisposed)
}
