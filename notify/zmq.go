package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// ZMQNotifier publishes events on a ZeroMQ PUB socket as two frames: topic and JSON payload
type ZMQNotifier struct {
	mu     sync.Mutex
	socket zmq4.Socket
	cancel context.CancelFunc
}

// NewZMQNotifier bind a PUB socket on address (e.g. "tcp://*:28400")
func NewZMQNotifier(address string) (*ZMQNotifier, error) {
	ctx, cancel := context.WithCancel(context.Background())
	socket := zmq4.NewPub(ctx)
	if err := socket.Listen(address); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	log.Printf("ZMQ notifier publishing on %s", address)
	return &ZMQNotifier{socket: socket, cancel: cancel}, nil
}

// Addr bound address of the PUB socket
func (z *ZMQNotifier) Addr() string {
	if addr := z.socket.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (z *ZMQNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	return z.socket.Send(zmq4.NewMsgFrom([]byte(event.Topic), payload))
}

func (z *ZMQNotifier) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	err := z.socket.Close()
	z.cancel()
	return err
}
