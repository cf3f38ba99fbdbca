package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/h0rv/opsdash/internal/gateway"
)

// DefaultChannelPrefix namespaces change channels; the table name is appended.
const DefaultChannelPrefix = "opsdash:changes:"

// Redis is a change feed over Redis pub/sub. Any process that writes a table (a database
// trigger bridge, another dashboard, a local backend) publishes to "<prefix><table>".
type Redis struct {
	rc     *redis.Client
	prefix string
	log    logrus.FieldLogger
}

// NewRedis creates a feed on rc. An empty prefix selects DefaultChannelPrefix.
func NewRedis(rc *redis.Client, prefix string, log logrus.FieldLogger) *Redis {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redis{rc: rc, prefix: prefix, log: log}
}

type changeMessage struct {
	Table string    `json:"table"`
	At    time.Time `json:"at"`
}

// Channel returns the pub/sub channel carrying signals for table.
func (r *Redis) Channel(table string) string {
	return r.prefix + table
}

// Publish wakes subscribers of table.
func (r *Redis) Publish(ctx context.Context, table string) error {
	data, err := json.Marshal(changeMessage{Table: table, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := r.rc.Publish(ctx, r.Channel(table), data).Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", table, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription for table. Messages are coalesced into at most one
// pending signal. Closing the subscription, or cancelling ctx, unsubscribes.
func (r *Redis) Subscribe(ctx context.Context, table string) (*gateway.Subscription, error) {
	ps := r.rc.Subscribe(ctx, r.Channel(table))
	// Wait for the subscription confirmation so publishes after Subscribe returns are seen.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan gateway.ChangeSignal, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		in := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					if subCtx.Err() == nil {
						r.log.WithField("table", table).Error("change feed channel closed")
					}
					return
				}
				sig := gateway.ChangeSignal{Table: table, At: time.Now()}
				var m changeMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err == nil && !m.At.IsZero() {
					sig.At = m.At
				}
				gateway.Signal(out, sig)
			}
		}
	}()

	sub := gateway.NewSubscription(out, func() error {
		cancel()
		err := ps.Close()
		<-done
		return err
	})
	context.AfterFunc(ctx, func() { _ = sub.Close() })
	return sub, nil
}
