package webviewflow

import (
	"context"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/webviewflow/internal/runtime"
	"github.com/drblury/webviewflow/internal/runtime/bus"
	configpkg "github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/webviewflow/internal/runtime/handlers"
	idspkg "github.com/drblury/webviewflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/webviewflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/webviewflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/webviewflow/internal/runtime/metadata"
	"github.com/drblury/webviewflow/internal/runtime/plugin"
	"github.com/drblury/webviewflow/internal/runtime/registry"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
	"github.com/drblury/webviewflow/transport/transports"
)

type (
	Config = configpkg.Config

	WebviewID         = webview.ID
	WebviewInstanceID = webview.InstanceID
	Address           = webview.Address
	Message           = webview.Message
	MessageBus        = webview.MessageBus

	NotificationHandler = webview.NotificationHandler
	RequestHandler      = webview.RequestHandler

	TransportEvent = webview.TransportEvent
	RuntimeEvent   = webview.RuntimeEvent
	RuntimeBus     = webview.RuntimeBus

	Bus[K comparable, P any] = bus.Bus[K, P]

	Registry[K comparable, I any, O any] = registry.Registry[K, I, O]
	Hashed[K any, I any, O any]          = registry.Hashed[K, I, O]
	RegistryHandler[I any, O any]        = registry.Handler[I, O]
	Hasher[K any]                        = registry.Hasher[K]

	Disposable = disposable.Disposable

	TransportService    = runtimepkg.TransportService
	ServiceDependencies = runtimepkg.ServiceDependencies
	TransportStatus     = runtimepkg.TransportStatus
	TrafficStats        = runtimepkg.TrafficStats
	Mediator            = runtimepkg.Mediator
	MediatorOptions     = runtimepkg.MediatorOptions
	Metrics             = runtimepkg.Metrics
	HTTPServer          = runtimepkg.HTTPServer
	StatusHandler       = runtimepkg.StatusHandler

	PluginHost        = plugin.Host
	PluginHostOptions = plugin.Options
	Plugin            = plugin.Plugin

	Transport             = transport.Transport
	TransportHandler      = transport.Handler
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities

	JSONNotificationHandler[T any]                        = handlerpkg.JSONNotificationHandler[T]
	JSONRequestHandler[T any, O any]                      = handlerpkg.JSONRequestHandler[T, O]
	ProtoNotificationHandler[T proto.Message]             = handlerpkg.ProtoNotificationHandler[T]
	ProtoRequestHandler[T proto.Message, O proto.Message] = handlerpkg.ProtoRequestHandler[T, O]

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	RequestFailedError    = errspkg.RequestFailedError
)

var (
	NewRuntimeBus       = webview.NewRuntimeBus
	NewTransportService = runtimepkg.NewTransportService
	NewMediator         = runtimepkg.NewMediator
	NewMetrics          = runtimepkg.NewMetrics
	NewHTTPServer       = runtimepkg.NewHTTPServer
	NewStatusHandler    = runtimepkg.NewStatusHandler
	NewPluginHost       = plugin.NewHost

	ValidateConfig = configpkg.ValidateConfig

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger

	DisposableFunc = disposable.Func
	NopDisposable  = disposable.Nop

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	NewMetadata = metadatapkg.New
	CreateULID  = idspkg.CreateULID
	EncodeProto = handlerpkg.EncodeProto

	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrTransportRequired   = errspkg.ErrTransportRequired
	ErrTransportRegistered = errspkg.ErrTransportRegistered
	ErrRuntimeBusRequired  = errspkg.ErrRuntimeBusRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrDisposed            = errspkg.ErrDisposed
	ErrInvalidPayload      = errspkg.ErrInvalidPayload
	ErrUnknownMessageType  = errspkg.ErrUnknownMessageType
	ErrUnknownTransport    = errspkg.ErrUnknownTransport
	ErrWebviewRegistered   = errspkg.ErrWebviewRegistered
	ErrInstanceClosed      = errspkg.ErrInstanceClosed
	ErrRequestTimedOut     = errspkg.ErrRequestTimedOut
)

// Runtime bus events.
const (
	RuntimeConnect      = webview.RuntimeConnect
	RuntimeDisconnect   = webview.RuntimeDisconnect
	RuntimeNotification = webview.RuntimeNotification
	RuntimeRequest      = webview.RuntimeRequest
	RuntimeResponse     = webview.RuntimeResponse

	PluginNotification = webview.PluginNotification
	PluginRequest      = webview.PluginRequest
	PluginResponse     = webview.PluginResponse
)

// Metadata keys set on broker messages.
const (
	MetadataKeyEvent             = metadatapkg.KeyEvent
	MetadataKeyWebviewID         = metadatapkg.KeyWebviewID
	MetadataKeyWebviewInstanceID = metadatapkg.KeyWebviewInstanceID
	MetadataKeyMessageType       = metadatapkg.KeyMessageType
	MetadataKeyRequestID         = metadatapkg.KeyRequestID
	MetadataKeyCorrelationID     = metadatapkg.KeyCorrelationID
)

// RegisterAllTransports makes every bundled transport available to
// BuildTransport.
func RegisterAllTransports() {
	transports.RegisterAll()
}

// NewBus returns an empty message bus.
func NewBus[K comparable, P any]() *Bus[K, P] {
	return bus.New[K, P]()
}

// NewRegistry returns a handler registry keyed by comparable values.
func NewRegistry[K comparable, I any, O any](opts ...registry.Option) *Registry[K, I, O] {
	return registry.New[K, I, O](opts...)
}

// NewHashedRegistry returns a registry for keys that are not comparable. A nil
// hash uses the canonical JSON encoding of the key.
func NewHashedRegistry[K any, I any, O any](hash Hasher[K], opts ...registry.Option) *Hashed[K, I, O] {
	if hash == nil {
		hash = registry.JSONHasher[K]()
	}
	return registry.NewHashed[K, I, O](hash, opts...)
}

// RegistryLogger and RegistryName configure NewRegistry and NewHashedRegistry.
func RegistryLogger(log ServiceLogger) registry.Option { return registry.WithLogger(log) }
func RegistryName(name string) registry.Option        { return registry.WithName(name) }

func JSONNotification[T any](handler JSONNotificationHandler[T]) NotificationHandler {
	return handlerpkg.JSONNotification(handler)
}

func JSONRequest[T any, O any](handler JSONRequestHandler[T, O]) RequestHandler {
	return handlerpkg.JSONRequest(handler)
}

func ProtoNotification[T proto.Message](handler ProtoNotificationHandler[T]) NotificationHandler {
	return handlerpkg.ProtoNotification(handler)
}

func ProtoRequest[T proto.Message, O proto.Message](handler ProtoRequestHandler[T, O]) RequestHandler {
	return handlerpkg.ProtoRequest(handler)
}

// BuildTransports builds every transport named in cfg.Transports from the
// default registry. On error the transports built so far are closed.
func BuildTransports(ctx context.Context, cfg *Config, log ServiceLogger) ([]Transport, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	out := make([]Transport, 0, len(cfg.Transports))
	for _, name := range cfg.Transports {
		t, err := transport.Build(ctx, name, cfg, log)
		if err != nil {
			for _, built := range out {
				if c, ok := built.(transport.Closer); ok {
					c.Dispose()
				}
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
