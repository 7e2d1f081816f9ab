package socketio

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/webviewflow/internal/runtime/config"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/ids"
	"github.com/drblury/webviewflow/internal/runtime/logging/logtest"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

type emitted struct {
	channel string
	payload any
}

type fakeSocket struct {
	id string

	mu           sync.Mutex
	handlers     map[string][]func(args ...any)
	emitted      []emitted
	disconnected int
	emitErr      error
}

func newFakeSocket(id string) *fakeSocket {
	return &fakeSocket{id: id, handlers: make(map[string][]func(args ...any))}
}

func (f *fakeSocket) ID() string { return f.id }

func (f *fakeSocket) On(event string, handler func(args ...any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
}

func (f *fakeSocket) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, emitted{channel: event, payload: payload})
	return f.emitErr
}

func (f *fakeSocket) Disconnect() {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
}

func (f *fakeSocket) fire(event string, args ...any) {
	f.mu.Lock()
	handlers := append([]func(args ...any)(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(args...)
	}
}

type recorded struct {
	event webview.TransportEvent
	msg   webview.Message
}

func listenAll(tr *Transport) *[]recorded {
	var out []recorded
	for _, event := range webview.InboundEvents() {
		tr.On(event, func(msg webview.Message) { out = append(out, recorded{event: event, msg: msg}) })
	}
	return &out
}

var chatA = webview.Address{WebviewID: "chat", WebviewInstanceID: "inst-1"}

func TestWebviewIDFromNamespace(t *testing.T) {
	tr := newTransport(Options{})

	id, ok := tr.webviewID("/webview/chat")
	assert.True(t, ok)
	assert.Equal(t, webview.ID("chat"), id)

	for _, ns := range []string{"/", "/webview", "/webview/", "/webview/chat/extra", "/other/chat"} {
		_, ok := tr.webviewID(ns)
		assert.False(t, ok, ns)
	}

	custom := newTransport(Options{NamespacePrefix: "/ui.v2"})
	id, ok = custom.webviewID("/ui.v2/duo")
	assert.True(t, ok)
	assert.Equal(t, webview.ID("duo"), id)
	_, ok = custom.webviewID("/uiXv2/duo")
	assert.False(t, ok, "prefix must be matched literally")
}

func TestAccept_EmitsCreatedWithFreshInstanceID(t *testing.T) {
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1", "inst-2")})
	events := listenAll(tr)

	first := newFakeSocket("s1")
	second := newFakeSocket("s2")
	tr.accept("chat", first)
	tr.accept("chat", second)

	require.Len(t, *events, 2)
	assert.Equal(t, recorded{event: webview.EventInstanceCreated, msg: webview.Lifecycle(chatA)}, (*events)[0])
	assert.Equal(t, webview.InstanceID("inst-2"), (*events)[1].msg.WebviewInstanceID)
	assert.ElementsMatch(t, []webview.Address{
		chatA,
		{WebviewID: "chat", WebviewInstanceID: "inst-2"},
	}, tr.Instances())
}

func TestAccept_ListenersAttachedBeforeCreated(t *testing.T) {
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1")})
	events := listenAll(tr)
	sock := newFakeSocket("s1")

	var attached []string
	tr.On(webview.EventInstanceCreated, func(webview.Message) {
		sock.mu.Lock()
		for channel := range sock.handlers {
			attached = append(attached, channel)
		}
		sock.mu.Unlock()
		// The client drops while the connect handler is still running.
		sock.fire("disconnect", "transport close")
	})

	tr.accept("chat", sock)

	assert.ElementsMatch(t, []string{
		webview.ChannelNotification,
		webview.ChannelRequest,
		webview.ChannelResponse,
		"disconnect",
	}, attached)
	require.Len(t, *events, 2)
	assert.Equal(t, webview.EventInstanceCreated, (*events)[0].event)
	assert.Equal(t, webview.EventInstanceDestroyed, (*events)[1].event)
	assert.Empty(t, tr.Instances())
}

func TestAccept_ValidatesInboundChannels(t *testing.T) {
	rec := logtest.New()
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1"), Logger: rec})
	events := listenAll(tr)
	sock := newFakeSocket("s1")
	tr.accept("chat", sock)

	sock.fire(webview.ChannelNotification, map[string]any{"type": "ping", "payload": "p"})
	sock.fire(webview.ChannelRequest, map[string]any{"type": "getUser", "requestId": "r1", "payload": 1})
	sock.fire(webview.ChannelResponse, map[string]any{"type": "getUser", "requestId": "r2", "success": true, "payload": "ok"})
	sock.fire(webview.ChannelResponse, map[string]any{"type": "getUser", "requestId": "r3", "success": false, "reason": "nope"})

	// malformed: missing type, missing requestId, missing success, no payload at all
	sock.fire(webview.ChannelNotification, map[string]any{"payload": "p"})
	sock.fire(webview.ChannelRequest, map[string]any{"type": "getUser"})
	sock.fire(webview.ChannelResponse, map[string]any{"type": "getUser", "requestId": "r4"})
	sock.fire(webview.ChannelNotification)

	require.Len(t, *events, 5)
	got := (*events)[1:]

	assert.Equal(t, webview.EventNotificationReceived, got[0].event)
	assert.Equal(t, webview.Notification(chatA, "ping", "p"), got[0].msg)

	assert.Equal(t, webview.EventRequestReceived, got[1].event)
	assert.Equal(t, webview.Request(chatA, "getUser", "r1", 1), got[1].msg)

	assert.Equal(t, webview.EventResponseReceived, got[2].event)
	assert.Equal(t, webview.SuccessResponse(chatA, "getUser", "r2", "ok"), got[2].msg)

	assert.Equal(t, webview.EventResponseReceived, got[3].event)
	assert.Equal(t, webview.FailureResponse(chatA, "getUser", "r3", "nope"), got[3].msg)

	assert.Equal(t, 4, rec.Count("warn"))
	entry, ok := rec.Find("warn", "Dropping malformed socket payload")
	require.True(t, ok)
	assert.Equal(t, "chat/inst-1", entry.Fields["address"])
}

func TestAccept_IgnoresSpoofedAddress(t *testing.T) {
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1")})
	events := listenAll(tr)
	sock := newFakeSocket("s1")
	tr.accept("chat", sock)

	sock.fire(webview.ChannelNotification, map[string]any{
		"webviewId":         "other",
		"webviewInstanceId": "stolen",
		"type":              "ping",
	})

	require.Len(t, *events, 2)
	assert.Equal(t, chatA, (*events)[1].msg.Address)
}

func TestDisconnect_EmitsDestroyedAndForgetsSocket(t *testing.T) {
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1")})
	events := listenAll(tr)
	sock := newFakeSocket("s1")
	tr.accept("chat", sock)

	var instancesDuringDestroy []webview.Address
	tr.On(webview.EventInstanceDestroyed, func(webview.Message) { instancesDuringDestroy = tr.Instances() })

	sock.fire("disconnect", "transport close")

	require.Len(t, *events, 2)
	assert.Equal(t, recorded{event: webview.EventInstanceDestroyed, msg: webview.Lifecycle(chatA)}, (*events)[1])
	assert.Empty(t, tr.Instances())
	assert.Empty(t, instancesDuringDestroy)

	err := tr.Publish(context.Background(), webview.EventNotification, webview.Notification(chatA, "late", nil))
	assert.NoError(t, err)
	assert.Empty(t, sock.emitted)
}

func TestPublish_RoutesByAddress(t *testing.T) {
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1", "inst-2")})
	first := newFakeSocket("s1")
	second := newFakeSocket("s2")
	tr.accept("chat", first)
	tr.accept("chat", second)
	ctx := context.Background()

	require.NoError(t, tr.Publish(ctx, webview.EventNotification, webview.Notification(chatA, "n", map[string]any{"x": 1})))
	require.NoError(t, tr.Publish(ctx, webview.EventRequest, webview.Request(chatA, "q", "r1", "p")))
	require.NoError(t, tr.Publish(ctx, webview.EventResponse, webview.FailureResponse(chatA, "q", "r2", "boom")))

	assert.Empty(t, second.emitted)
	require.Len(t, first.emitted, 3)
	assert.Equal(t, emitted{channel: "notification", payload: map[string]any{"type": "n", "payload": map[string]any{"x": 1}}}, first.emitted[0])
	assert.Equal(t, emitted{channel: "request", payload: map[string]any{"type": "q", "requestId": "r1", "payload": "p"}}, first.emitted[1])
	assert.Equal(t, emitted{channel: "response", payload: map[string]any{"type": "q", "requestId": "r2", "success": false, "reason": "boom"}}, first.emitted[2])
}

func TestPublish_MissingSocketIsLoggedNotFatal(t *testing.T) {
	rec := logtest.New()
	tr := newTransport(Options{Logger: rec})

	err := tr.Publish(context.Background(), webview.EventNotification, webview.Notification(chatA, "n", nil))
	require.NoError(t, err)

	entry, ok := rec.Find("warn", "No socket for webview instance")
	require.True(t, ok)
	assert.Equal(t, "chat/inst-1", entry.Fields["address"])
}

func TestPublish_UnknownEvent(t *testing.T) {
	tr := newTransport(Options{})
	err := tr.Publish(context.Background(), webview.EventInstanceCreated, webview.Lifecycle(chatA))
	assert.ErrorIs(t, err, errspkg.ErrUnknownMessageType)
}

func TestPublish_ReturnsEmitError(t *testing.T) {
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1")})
	sock := newFakeSocket("s1")
	sock.emitErr = errors.New("write failed")
	tr.accept("chat", sock)

	err := tr.Publish(context.Background(), webview.EventNotification, webview.Notification(chatA, "n", nil))
	assert.EqualError(t, err, "write failed")
}

func TestDispose_DisconnectsEverySocket(t *testing.T) {
	tr := newTransport(Options{InstanceIDs: ids.Sequence("inst-1", "inst-2")})
	first := newFakeSocket("s1")
	second := newFakeSocket("s2")
	tr.accept("chat", first)
	tr.accept("duo", second)

	calls := 0
	tr.On(webview.EventInstanceDestroyed, func(webview.Message) { calls++ })

	tr.Dispose()
	tr.Dispose()

	assert.Equal(t, 1, first.disconnected)
	assert.Equal(t, 1, second.disconnected)
	assert.Empty(t, tr.Instances())

	first.fire("disconnect", "server namespace disconnect")
	assert.Zero(t, calls, "handlers are removed on dispose")

	late := newFakeSocket("s3")
	tr.accept("chat", late)
	assert.Equal(t, 1, late.disconnected)
	assert.Empty(t, tr.Instances())
}

func TestNew_BuildsServerHandler(t *testing.T) {
	tr := New(Options{CORSOrigins: []string{"http://localhost:3000"}})
	defer tr.Dispose()

	assert.NotNil(t, tr.Handler())
	assert.Equal(t, transport.SocketIOCapabilities, tr.Capabilities())
}

func TestRegisterAndBuild(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()
	assert.Equal(t, transport.SocketIOCapabilities, transport.GetCapabilities(TransportName))
	assert.Equal(t, transport.SocketIOCapabilities, Capabilities())

	built, err := transport.Build(context.Background(), TransportName, &config.Config{SocketNamespacePrefix: "/ui"}, nil)
	require.NoError(t, err)
	tr, ok := built.(*Transport)
	require.True(t, ok)
	defer tr.Dispose()

	_, matched := tr.webviewID("/ui/chat")
	assert.True(t, matched)
}
