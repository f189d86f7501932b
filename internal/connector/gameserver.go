// Package connector maintains the persistent TCP link to the game server.
// All GM commands travel over this single connection; the read loop decodes
// the byte stream into frames and hands them to the dispatcher.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gmbridge-project/gmbridge/internal/codec"
	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/events"
	"github.com/gmbridge-project/gmbridge/internal/protocol"
)

const (
	gameConnectTimeout = 30 * time.Second
	gameReadTimeout    = 10 * time.Second
	readChunkSize      = 4096
)

// FrameHandler receives every decoded frame from the read loop.
type FrameHandler func(frame protocol.Frame)

// GameServerConnector manages the persistent TCP connection to the game
// server. It owns the only socket; sends are serialized under the mutex and
// reads happen in a single loop per connection.
type GameServerConnector struct {
	mu sync.Mutex

	cfg      *config.Config
	eventBus *events.EventBus
	onFrame  FrameHandler

	conn      net.Conn
	connected bool
	framer    codec.Framer

	// Shutdown signal
	stopCh chan struct{}
}

// NewGameServerConnector creates a new game server connector. onFrame is
// called from the read loop for every decoded frame.
func NewGameServerConnector(cfg *config.Config, eventBus *events.EventBus, onFrame FrameHandler) *GameServerConnector {
	return &GameServerConnector{
		cfg:      cfg,
		eventBus: eventBus,
		onFrame:  onFrame,
		stopCh:   make(chan struct{}),
	}
}

// ManageConnection maintains the TCP connection to the game server.
// It reconnects with a bounded retry budget after each disconnect and
// returns once the budget is spent or the context is cancelled.
func (c *GameServerConnector) ManageConnection(ctx context.Context) error {
	log.Info().Msg("starting game server connection manager")

	gameData := c.cfg.GetGameData()
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			c.Disconnect()
			return nil
		case <-c.stopCh:
			c.Disconnect()
			return nil
		default:
		}

		if err := c.Connect(ctx); err != nil {
			attempts++
			if attempts >= gameData.ReconnectAttempts {
				return fmt.Errorf("game server unreachable after %d attempts: %w", attempts, err)
			}
			log.Error().Err(err).Int("attempt", attempts).Msg("game server connection failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(gameData.ReconnectDelay()):
			}
			continue
		}
		attempts = 0

		// Enter the read loop (blocks until disconnected or error)
		c.readLoop(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		log.Warn().Msg("disconnected from game server, reconnecting...")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(gameData.ReconnectDelay()):
		}
	}
}

// Connect establishes the TCP connection.
func (c *GameServerConnector) Connect(ctx context.Context) error {
	gameData := c.cfg.GetGameData()
	addr := fmt.Sprintf("%s:%d", gameData.Host, gameData.Port)
	log.Info().Str("addr", addr).Msg("connecting to game server")

	dialer := net.Dialer{Timeout: gameConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to game server at %s: %w", addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.framer = codec.Framer{} // drop any bytes from the previous connection
	c.mu.Unlock()

	log.Info().Str("addr", addr).Msg("connected to game server")

	c.eventBus.Emit(ctx, events.Event{
		Type:   events.EventGameConnected,
		Source: "connector",
	})

	return nil
}

// Send encodes and writes one command frame to the game server.
func (c *GameServerConnector) Send(seqNo int, body, account string) error {
	frame, err := codec.EncodeFrame(seqNo, body, account)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write to game server: %w", err)
	}
	return nil
}

// SendLogin sends the login command using the configured GM credentials.
func (c *GameServerConnector) SendLogin() error {
	gameData := c.cfg.GetGameData()
	body := protocol.BuildLogin(gameData.Account, gameData.Password)
	return c.Send(protocol.SeqLogin, body, gameData.Account)
}

// ErrNotConnected reports a send attempted while the link is down.
var ErrNotConnected = errors.New("connector: not connected to game server")

// readLoop continuously reads from the socket, feeds the framer and delivers
// every decoded frame. It returns on any fatal read error after closing the
// connection.
func (c *GameServerConnector) readLoop(ctx context.Context) {
	buf := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		connected := c.connected
		c.mu.Unlock()

		if !connected || conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(gameReadTimeout))

		n, err := conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.framer.Feed(buf[:n])
			c.mu.Unlock()
			c.drainFrames(ctx)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("game server closed connection")
			} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Timeout is OK, just continue
				continue
			} else {
				log.Error().Err(err).Msg("error reading from game server")
			}
			c.markDisconnected(ctx)
			return
		}
	}
}

// drainFrames decodes every complete frame buffered in the framer. Corrupt
// frames are logged and skipped; the framer resynchronizes on the next
// signature.
func (c *GameServerConnector) drainFrames(ctx context.Context) {
	for {
		c.mu.Lock()
		cipher, err := c.framer.Next()
		c.mu.Unlock()

		if errors.Is(err, codec.ErrNeedMore) {
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}

		plain, err := codec.Decrypt(cipher)
		if err != nil {
			log.Warn().Err(err).Msg("failed to decrypt frame")
			continue
		}

		seqNo, content, err := protocol.ParseResponse(plain)
		if err != nil {
			log.Warn().Err(err).Str("raw", plain).Msg("failed to parse server response")
			continue
		}

		frame := protocol.Frame{
			SeqNo:     seqNo,
			Content:   content,
			Raw:       plain,
			ArrivedAt: time.Now(),
		}

		log.Debug().Int("seq_no", seqNo).Int("bytes", len(plain)).Msg("frame received")

		if c.onFrame != nil {
			c.onFrame(frame)
		}

		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventFrameReceived,
			Source: "connector",
			Payload: events.FrameReceivedPayload{
				SeqNo:   seqNo,
				Content: content,
			},
		})
	}
}

// markDisconnected closes the socket and announces the state change.
func (c *GameServerConnector) markDisconnected(ctx context.Context) {
	c.mu.Lock()
	wasConnected := c.connected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventGameDisconnected,
			Source: "connector",
		})
	}
}

// Disconnect closes the game server connection.
func (c *GameServerConnector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	log.Info().Msg("disconnected from game server")
}

// Stop tells the connection manager to exit after the current read returns.
func (c *GameServerConnector) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// IsConnected returns whether the game server link is up.
func (c *GameServerConnector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
