// Package transport adapts the teacher repo's TCP accept loop and worker
// pool into a gateway process for OBM's direct-client path: it decodes
// the fixed-width wire protocol in messages.go and republishes each
// message as a command on the durable queue, rather than mutating a book
// itself — all book mutation stays inside the Command Consumer
// (spec.md §5's single-writer rule).
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu/obm/internal/queue"
)

const (
	defaultWorkers    = 10
	readHeaderTimeout = 5 * time.Second
)

// CommandSender is the subset of *queue.Producer the gateway depends on.
type CommandSender interface {
	Send(ctx context.Context, operation queue.Operation, data any) error
}

// Gateway accepts TCP connections speaking the fixed-width wire protocol
// and forwards decoded messages onto the command queue.
type Gateway struct {
	address string
	port    int
	sender  CommandSender
	pool    WorkerPool
	cancel  context.CancelFunc
}

// New builds a Gateway that publishes through sender.
func New(address string, port int, sender CommandSender) *Gateway {
	return &Gateway{
		address: address,
		port:    port,
		sender:  sender,
		pool:    NewWorkerPool(defaultWorkers),
	}
}

// Run accepts connections until ctx is cancelled or the tomb dies.
func (g *Gateway) Run(t *tomb.Tomb) error {
	ctx := t.Context(nil)
	ctx, g.cancel = context.WithCancel(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", g.address, g.port))
	if err != nil {
		return fmt.Errorf("transport: listen: %w", err)
	}
	defer listener.Close()

	// Accept does not observe ctx, so close the listener to unblock it.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	t.Go(func() error {
		g.pool.Setup(t, g.handleConnection)
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("transport: gateway listening")

	for {
		select {
		case <-t.Dying():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("transport: accept failed")
				continue
			}
			g.pool.AddTask(conn)
		}
	}
}

// Shutdown stops accepting new connections.
func (g *Gateway) Shutdown() {
	if g.cancel != nil {
		g.cancel()
	}
}

// handleConnection reads one message, forwards it, writes a one-byte
// ack/nack, and closes. The wire protocol here is request-response, not
// the teacher's long-lived session (direct clients don't need server
// pushed trade reports — those travel over the event publisher instead).
func (g *Gateway) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return fmt.Errorf("transport: unexpected task type %T", task)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readHeaderTimeout))

	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return fmt.Errorf("transport: read header: %w", err)
	}
	msgType := MessageType(binary.BigEndian.Uint16(header))

	var body []byte
	switch msgType {
	case NewOrder:
		body = make([]byte, newOrderLen-2)
	case CancelOrder:
		body = make([]byte, cancelOrderLen-2)
	default:
		g.writeAck(conn, false)
		return ErrInvalidMessageType
	}
	if _, err := io.ReadFull(conn, body); err != nil {
		return fmt.Errorf("transport: read body: %w", err)
	}

	full := append(header, body...)
	msg, err := ParseMessage(full)
	if err != nil {
		g.writeAck(conn, false)
		return err
	}

	ctx := t.Context(nil)
	if err := g.dispatch(ctx, msg); err != nil {
		g.writeAck(conn, false)
		return err
	}
	g.writeAck(conn, true)
	return nil
}

func (g *Gateway) dispatch(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case NewOrderMessage:
		side := "BUY"
		if m.Side == 1 {
			side = "SELL"
		}
		payload := map[string]any{
			"order_id":    uuid.UUID(m.OrderID).String(),
			"side":        side,
			"price_paise": m.PricePaise,
			"qty":         m.Qty,
		}
		return g.sender.Send(ctx, queue.OpCreate, payload)
	case CancelOrderMessage:
		payload := map[string]any{
			"order_id": uuid.UUID(m.OrderID).String(),
		}
		return g.sender.Send(ctx, queue.OpCancel, payload)
	default:
		return fmt.Errorf("transport: unhandled message %T", msg)
	}
}

func (g *Gateway) writeAck(conn net.Conn, ok bool) {
	var b byte
	if ok {
		b = 1
	}
	conn.Write([]byte{b})
}
