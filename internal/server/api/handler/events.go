package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/internal/kvm"
	"github.com/Alia5/btkvm/internal/server/api"
)

// eventBuffer is how far a stream may fall behind before it is dropped.
const eventBuffer = 32

// Events streams service events as newline-delimited JSON until the client
// hangs up, the server stops or the stream falls behind.
func Events(k *kvm.Service) api.StreamHandlerFunc {
	return func(conn net.Conn, req *api.Request, logger *slog.Logger) error {
		ctx, cancel := context.WithCancel(req.Ctx)
		defer cancel()

		events, unsubscribe := k.Subscribe(eventBuffer)
		defer unsubscribe()

		// Anything the client sends is ignored; EOF means it went away.
		go func() {
			_, _ = io.Copy(io.Discard, conn)
			cancel()
		}()

		// The first line is a snapshot of the current rotation.
		enc := json.NewEncoder(conn)
		if err := enc.Encode(event(kvm.EventHostChanged, k.ConnectedClientNames())); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return errors.New("event stream closed (subscriber too slow or service stopped)")
				}
				if err := enc.Encode(event(ev.Kind, ev.Names)); err != nil {
					return err
				}
			}
		}
	}
}

func event(kind kvm.EventKind, names []string) apitypes.Event {
	if names == nil {
		names = []string{}
	}
	return apitypes.Event{Kind: string(kind), Clients: names}
}
