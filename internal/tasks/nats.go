package tasks

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"intake-backend/internal/shared/telemetry"
)

// ConnectNATS dials the task gateway. The connection keeps reconnecting in the
// background; publishes made while disconnected are buffered by the client.
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("intake-backend"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			fields := map[string]any{}
			if err != nil {
				fields["error"] = err.Error()
			}
			telemetry.Warn("nats.disconnected", fields)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telemetry.Info("nats.reconnected", map[string]any{"url": nc.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

var _ Publisher = (*nats.Conn)(nil)
