package mirrortail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"campus-transport/internal/general/config"
	"campus-transport/internal/general/contracts"
	"campus-transport/internal/general/logger"
	"campus-transport/internal/general/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// tailEvent is MirrorEvent with the entity left undecoded.
type tailEvent struct {
	Event     string                    `json:"event"`
	Kind      string                    `json:"kind"`
	ID        string                    `json:"id"`
	Entity    json.RawMessage           `json:"entity"`
	Snapshot  *contracts.SnapshotCounts `json:"snapshot"`
	SessionID string                    `json:"session_id"`
	SentAt    time.Time                 `json:"sent_at"`
}

// Run prints every mirrored event to w until ctx is cancelled.
func Run(ctx context.Context, configPath string, w io.Writer) error {
	logger := logger.New("mirror-tail")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	mq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg.Mirror, logger)
	if err != nil {
		logger.Error(ctx, "mirror_connect_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer mq.Close()

	handler := func(_ context.Context, d amqp.Delivery) error {
		line, err := formatEvent(d.RoutingKey, d.Body)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}

	// the client re-dials on its own; re-subscribe after a lost channel
	for {
		err := mq.Tail(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Error(ctx, "mirror_tail_interrupted", "Tail stopped; retrying", err, nil)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func formatEvent(routingKey string, body []byte) (string, error) {
	var ev tailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("decode %s: %w", routingKey, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-16s", ev.SentAt.UTC().Format(time.RFC3339), routingKey)
	switch ev.Event {
	case contracts.MirrorSnapshot:
		if ev.Snapshot != nil {
			fmt.Fprintf(&b, " autos=%d buggies=%d riders=%d", ev.Snapshot.Autos, ev.Snapshot.Buggies, ev.Snapshot.Riders)
		}
	case contracts.MirrorRemoved:
		fmt.Fprintf(&b, " id=%s", ev.ID)
	default:
		fmt.Fprintf(&b, " id=%s %s", ev.ID, ev.Entity)
	}
	if ev.SessionID != "" {
		fmt.Fprintf(&b, " session=%s", ev.SessionID)
	}
	return b.String(), nil
}
