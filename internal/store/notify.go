package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ChannelResultEvents is the Postgres NOTIFY channel the results insert
// trigger publishes to.
const ChannelResultEvents = "alterity_result_events"

// Listener holds a dedicated connection for LISTEN/NOTIFY. Notifications only
// arrive on the connection that issued LISTEN, so this cannot share the pool.
type Listener struct {
	conn *pgx.Conn
}

// NewListener opens a dedicated notify connection.
func NewListener(ctx context.Context, databaseURL string) (*Listener, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	return &Listener{conn: conn}, nil
}

// Listen starts listening on the result events channel.
func (l *Listener) Listen(ctx context.Context) error {
	_, err := l.conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChannelResultEvents}.Sanitize())
	if err != nil {
		return fmt.Errorf("listen %s: %w", ChannelResultEvents, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives and returns its payload.
func (l *Listener) WaitForNotification(ctx context.Context) (string, error) {
	notification, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return "", fmt.Errorf("wait for notification: %w", err)
	}
	return notification.Payload, nil
}

// Close releases the underlying connection.
func (l *Listener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}
