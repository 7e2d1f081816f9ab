package broker

import (
	"context"
	"sync"

	"github.com/drblury/webviewflow/internal/runtime/disposable"
	errspkg "github.com/drblury/webviewflow/internal/runtime/errors"
	"github.com/drblury/webviewflow/internal/runtime/logging"
	"github.com/drblury/webviewflow/internal/runtime/webview"
	"github.com/drblury/webviewflow/transport"
)

// Relay is the edge side of the bridge. It forwards the inbound events of a
// local transport to the broker and publishes outbound events consumed from
// the broker on that transport.
type Relay struct {
	local    transport.Transport
	endpoint *endpoint
	log      logging.ServiceLogger
	subs     *disposable.Composite

	disposeOnce sync.Once
}

// NewRelay bridges local onto the broker described by opts.
func NewRelay(ctx context.Context, local transport.Transport, opts Options) (*Relay, error) {
	if local == nil {
		return nil, errspkg.ErrTransportRequired
	}
	cfg := opts.endpointConfig("relay")
	r := &Relay{local: local, log: cfg.log, subs: disposable.NewComposite()}

	ep, err := newEndpoint(ctx, cfg, webview.OutboundEvents(), r.deliver)
	if err != nil {
		return nil, err
	}
	r.endpoint = ep

	for _, event := range webview.InboundEvents() {
		event := event
		r.subs.Add(local.On(event, func(msg webview.Message) {
			if err := ep.publish(context.Background(), event, msg); err != nil {
				r.log.Error("Failed to relay event to broker", err, logging.LogFields{
					"event":   string(event),
					"address": msg.Address.String(),
				})
			}
		}))
	}
	return r, nil
}

func (r *Relay) deliver(event webview.TransportEvent, msg webview.Message) {
	if err := r.local.Publish(context.Background(), event, msg); err != nil {
		r.log.Error("Failed to deliver broker event", err, logging.LogFields{
			"event":   string(event),
			"address": msg.Address.String(),
		})
	}
}

// Dispose detaches from the local transport and stops the router. The local
// transport stays open.
func (r *Relay) Dispose() {
	r.disposeOnce.Do(func() {
		r.subs.Dispose()
		r.endpoint.close()
	})
}
