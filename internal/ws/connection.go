package ws

import (
	"context"
	"errors"
	"sync"

	"relay/internal/models"
	"relay/internal/registry"
)

var errOutboxClosed = errors.New("outbox closed")

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Join(handle registry.Handle) chan models.ServerMessage
	Leave(ctx context.Context, handle registry.Handle)
	Dispatch(ctx context.Context, handle registry.Handle, msg models.ClientMessage)
}

type Connection struct {
	ws         wsConnection
	hub        messageHub
	handle     registry.Handle
	fromClient chan models.ClientMessage
	fromServer chan models.ServerMessage
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	handle registry.Handle,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		handle:     handle,
		fromClient: make(chan models.ClientMessage),
		fromServer: hub.Join(handle),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		// ctx is already cancelled here but the offline notice still has to go out.
		c.hub.Leave(context.WithoutCancel(ctx), c.handle)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.fromClient:
			c.hub.Dispatch(ctx, c.handle, msg)
		case msg, ok := <-c.fromServer:
			if !ok {
				return errOutboxClosed
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
