package webos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// pointerSocket is the payload of a getPointerInputSocket response.
type pointerSocket struct {
	SocketPath string `json:"socketPath"`
}

// SendButton delivers a remote-button event. Button events do not travel
// over the control socket; the TV hands out a separate pointer-input socket
// which is dialed lazily and kept open for the life of the session.
func (c *Client) SendButton(ctx context.Context, name string, timeout time.Duration) error {
	code, ok := ButtonCode(name)
	if !ok {
		return fmt.Errorf("unsupported button %q", name)
	}

	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	return s.sendButton(ctx, code, timeout)
}

func (s *session) sendButton(ctx context.Context, code string, timeout time.Duration) error {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()

	if s.inputConn == nil {
		conn, err := s.dialInput(ctx, timeout)
		if err != nil {
			return err
		}
		s.inputConn = conn
	}

	frame := fmt.Sprintf("type:button\nname:%s\n\n", code)
	if err := s.inputConn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		// Stale input socket; the next press re-dials.
		s.inputConn.Close()
		s.inputConn = nil
		return fmt.Errorf("%w: input socket write failed: %v", ErrProtocol, err)
	}

	s.logger.Debug().
		Str("button", code).
		Msg("Button event sent")

	return nil
}

// dialInput asks the TV for its pointer input socket and connects to it.
func (s *session) dialInput(ctx context.Context, timeout time.Duration) (*websocket.Conn, error) {
	payload, err := s.request(ctx, URIPointerInputSocket, nil, timeout)
	if err != nil {
		return nil, err
	}

	var sock pointerSocket
	if err := json.Unmarshal(payload, &sock); err != nil || sock.SocketPath == "" {
		return nil, fmt.Errorf("%w: no pointer input socket in response", ErrProtocol)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.client.opts.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, sock.SocketPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial input socket: %v", ErrConnectivity, err)
	}

	s.logger.Debug().
		Str("socket", sock.SocketPath).
		Msg("Pointer input socket connected")

	return conn, nil
}
