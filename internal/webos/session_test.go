package webos_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/credstore"
	"iris/internal/webos"
)

// fakeTV is a scripted control endpoint. The handler runs once per accepted
// connection; errors inside it end the connection rather than the test.
type fakeTV struct {
	host        string
	connections atomic.Int32

	mu        sync.Mutex
	registers []webos.Message
}

func newFakeTV(t *testing.T, handler func(tv *fakeTV, conn *websocket.Conn)) *fakeTV {
	t.Helper()

	tv := &fakeTV{}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		tv.connections.Add(1)
		handler(tv, conn)
	}))
	t.Cleanup(srv.Close)

	tv.host = strings.TrimPrefix(srv.URL, "http://")
	return tv
}

// readRegister consumes the register frame and records it.
func (tv *fakeTV) readRegister(conn *websocket.Conn) (webos.Message, error) {
	var reg webos.Message
	if err := conn.ReadJSON(&reg); err != nil {
		return reg, err
	}
	tv.mu.Lock()
	tv.registers = append(tv.registers, reg)
	tv.mu.Unlock()
	return reg, nil
}

// registerPayloads decodes the recorded register payloads.
func (tv *fakeTV) registerPayloads() []map[string]interface{} {
	tv.mu.Lock()
	defer tv.mu.Unlock()

	var payloads []map[string]interface{}
	for _, reg := range tv.registers {
		var p map[string]interface{}
		_ = json.Unmarshal(reg.Payload, &p)
		payloads = append(payloads, p)
	}
	return payloads
}

// acceptRegistration reads the register frame and grants the given key.
func (tv *fakeTV) acceptRegistration(conn *websocket.Conn, clientKey string) error {
	reg, err := tv.readRegister(conn)
	if err != nil {
		return err
	}
	return conn.WriteJSON(webos.Message{
		Type:    webos.TypeRegistered,
		ID:      reg.ID,
		Payload: json.RawMessage(fmt.Sprintf(`{"client-key":%q}`, clientKey)),
	})
}

// serveCommands answers commands with canned payloads until the peer hangs up.
func serveCommands(conn *websocket.Conn) {
	for {
		var msg webos.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var payload string
		switch msg.URI {
		case webos.URIGetVolume:
			payload = `{"returnValue":true,"volume":7,"muted":false}`
		case webos.URIForegroundAppInfo:
			payload = `{"returnValue":true,"appId":"netflix"}`
		default:
			payload = `{"returnValue":true}`
		}

		if err := conn.WriteJSON(webos.Message{
			Type:    webos.TypeResponse,
			ID:      msg.ID,
			Payload: json.RawMessage(payload),
		}); err != nil {
			return
		}
	}
}

func newTestClient(t *testing.T, host string, opts webos.Options) (*webos.Client, *credstore.Store) {
	t.Helper()
	store := credstore.NewStore(filepath.Join(t.TempDir(), "store.json"))
	client := webos.NewClient(host, store, opts)
	t.Cleanup(client.Close)
	return client, store
}

func TestFirstPairing(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		reg, err := tv.readRegister(conn)
		if err != nil {
			return
		}
		// Prompt notification first, acceptance after.
		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeResponse,
			ID:      reg.ID,
			Payload: json.RawMessage(`{"pairingType":"PROMPT"}`),
		})
		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeRegistered,
			ID:      reg.ID,
			Payload: json.RawMessage(`{"client-key":"fresh-key"}`),
		})
		serveCommands(conn)
	})

	client, store := newTestClient(t, tv.host, webos.Options{MAC: "aa:bb:cc:dd:ee:ff"})

	require.False(t, client.Paired())
	require.NoError(t, client.BeginPairing(context.Background()))

	t.Run("register frame carried no client key", func(t *testing.T) {
		payloads := tv.registerPayloads()
		require.Len(t, payloads, 1)
		assert.NotContains(t, payloads[0], "client-key")
	})

	t.Run("credential is persisted with the device MAC", func(t *testing.T) {
		cred, ok := store.Load(tv.host)
		require.True(t, ok)
		assert.Equal(t, "fresh-key", cred.ClientKey)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", cred.MAC)
		assert.False(t, cred.IssuedAt.IsZero())
	})

	t.Run("session is ready and commands flow", func(t *testing.T) {
		assert.Equal(t, webos.StateReady, client.State())
		assert.True(t, client.Paired())

		payload, err := client.Request(context.Background(), webos.URIGetVolume, nil, time.Second)
		require.NoError(t, err)

		var vol webos.VolumeStatus
		require.NoError(t, json.Unmarshal(payload, &vol))
		assert.Equal(t, 7, vol.Volume)
	})
}

func TestStoredCredentialReused(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		if err := tv.acceptRegistration(conn, "stored-key"); err != nil {
			return
		}
		serveCommands(conn)
	})

	client, store := newTestClient(t, tv.host, webos.Options{})
	require.NoError(t, store.Save(tv.host, credstore.Credential{ClientKey: "stored-key"}))

	require.NoError(t, client.BeginPairing(context.Background()))

	payloads := tv.registerPayloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, "stored-key", payloads[0]["client-key"])
}

func TestRevokedCredential(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		reg, err := tv.readRegister(conn)
		if err != nil {
			return
		}

		var payload map[string]interface{}
		_ = json.Unmarshal(reg.Payload, &payload)
		if _, hasKey := payload["client-key"]; hasKey {
			// Revoked: refuse the stale key.
			_ = conn.WriteJSON(webos.Message{
				Type:  webos.TypeError,
				ID:    reg.ID,
				Error: "403 access denied",
			})
			return
		}

		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeRegistered,
			ID:      reg.ID,
			Payload: json.RawMessage(`{"client-key":"reissued-key"}`),
		})
		serveCommands(conn)
	})

	client, store := newTestClient(t, tv.host, webos.Options{})
	require.NoError(t, store.Save(tv.host, credstore.Credential{ClientKey: "revoked-key"}))

	t.Run("rejection surfaces and discards the stale credential", func(t *testing.T) {
		err := client.BeginPairing(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, webos.ErrPairingRejected)

		_, ok := store.Load(tv.host)
		assert.False(t, ok)
	})

	t.Run("next attempt re-pairs from scratch", func(t *testing.T) {
		require.NoError(t, client.BeginPairing(context.Background()))

		payloads := tv.registerPayloads()
		require.Len(t, payloads, 2)
		assert.Equal(t, "revoked-key", payloads[0]["client-key"])
		assert.NotContains(t, payloads[1], "client-key")

		cred, ok := store.Load(tv.host)
		require.True(t, ok)
		assert.Equal(t, "reissued-key", cred.ClientKey)
	})
}

func TestFirstPairingDeclined(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		reg, err := tv.readRegister(conn)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(webos.Message{
			Type:  webos.TypeError,
			ID:    reg.ID,
			Error: "user declined",
		})
	})

	client, _ := newTestClient(t, tv.host, webos.Options{})

	err := client.BeginPairing(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, webos.ErrPairingRejected)
	assert.Equal(t, webos.StateFailed, client.State())
}

func TestPairingTimeout(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		reg, err := tv.readRegister(conn)
		if err != nil {
			return
		}
		// Prompt shown, user never accepts.
		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeResponse,
			ID:      reg.ID,
			Payload: json.RawMessage(`{"pairingType":"PROMPT"}`),
		})
		time.Sleep(2 * time.Second)
	})

	client, _ := newTestClient(t, tv.host, webos.Options{PairingTimeout: 200 * time.Millisecond})

	start := time.Now()
	err := client.BeginPairing(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, webos.ErrPairingTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnectivityFailure(t *testing.T) {
	// Grab a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	client, _ := newTestClient(t, host, webos.Options{DialTimeout: 500 * time.Millisecond})

	err := client.BeginPairing(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, webos.ErrConnectivity)
	assert.Equal(t, webos.StateFailed, client.State())
}

func TestEstablishmentIsShared(t *testing.T) {
	release := make(chan struct{})

	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		reg, err := tv.readRegister(conn)
		if err != nil {
			return
		}
		<-release
		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeRegistered,
			ID:      reg.ID,
			Payload: json.RawMessage(`{"client-key":"shared-key"}`),
		})
		serveCommands(conn)
	})

	client, _ := newTestClient(t, tv.host, webos.Options{})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Request(context.Background(), webos.URIGetVolume, nil, 5*time.Second)
		}(i)
	}

	// Let all three join the in-flight attempt before it completes.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), tv.connections.Load(), "all callers must share one transport")
}

func TestJoinerHonorsOwnContext(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		// Registration never completes; joiners give up on their own terms.
		_, _ = tv.readRegister(conn)
		time.Sleep(2 * time.Second)
	})

	client, _ := newTestClient(t, tv.host, webos.Options{PairingTimeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := client.BeginPairing(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCommandCorrelation(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		if err := tv.acceptRegistration(conn, "key"); err != nil {
			return
		}

		// Collect two requests, answer them in reverse order.
		var first, second webos.Message
		if err := conn.ReadJSON(&first); err != nil {
			return
		}
		if err := conn.ReadJSON(&second); err != nil {
			return
		}

		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeResponse,
			ID:      second.ID,
			Payload: json.RawMessage(fmt.Sprintf(`{"returnValue":true,"echo":%q}`, second.URI)),
		})
		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeResponse,
			ID:      first.ID,
			Payload: json.RawMessage(fmt.Sprintf(`{"returnValue":true,"echo":%q}`, first.URI)),
		})
	})

	client, _ := newTestClient(t, tv.host, webos.Options{})
	require.NoError(t, client.BeginPairing(context.Background()))

	type echoResult struct {
		Echo string `json:"echo"`
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	uris := []string{webos.URIGetVolume, webos.URIForegroundAppInfo}
	for i, uri := range uris {
		wg.Add(1)
		go func(i int, uri string) {
			defer wg.Done()
			payload, err := client.Request(context.Background(), uri, nil, 5*time.Second)
			if err != nil {
				return
			}
			var res echoResult
			_ = json.Unmarshal(payload, &res)
			results[i] = res.Echo
		}(i, uri)
		// Fixed send order so the fake's reversed replies cross over.
		time.Sleep(50 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, uris[0], results[0])
	assert.Equal(t, uris[1], results[1])
}

func TestCommandTimeoutAndLateResponse(t *testing.T) {
	lateID := make(chan string, 1)
	answered := make(chan struct{})

	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		if err := tv.acceptRegistration(conn, "key"); err != nil {
			return
		}

		// Swallow the first command, then answer it far too late.
		var msg webos.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		lateID <- msg.ID

		time.Sleep(300 * time.Millisecond)
		_ = conn.WriteJSON(webos.Message{
			Type:    webos.TypeResponse,
			ID:      msg.ID,
			Payload: json.RawMessage(`{"returnValue":true}`),
		})
		close(answered)

		serveCommands(conn)
	})

	client, _ := newTestClient(t, tv.host, webos.Options{})
	require.NoError(t, client.BeginPairing(context.Background()))

	t.Run("deadline elapses and the call fails fast", func(t *testing.T) {
		start := time.Now()
		_, err := client.Request(context.Background(), webos.URIGetVolume, nil, 100*time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, webos.ErrCommandTimeout)
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("late response is dropped and the session stays usable", func(t *testing.T) {
		<-lateID
		<-answered

		payload, err := client.Request(context.Background(), webos.URIGetVolume, nil, 2*time.Second)
		require.NoError(t, err)

		var vol webos.VolumeStatus
		require.NoError(t, json.Unmarshal(payload, &vol))
		assert.Equal(t, 7, vol.Volume)
	})
}

func TestSessionClosedMidFlight(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		if err := tv.acceptRegistration(conn, "key"); err != nil {
			return
		}

		// Read the command and drop the link instead of answering, the way
		// a TV on its way into standby does.
		var msg webos.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		conn.Close()
	})

	client, _ := newTestClient(t, tv.host, webos.Options{})
	require.NoError(t, client.BeginPairing(context.Background()))

	_, err := client.Request(context.Background(), webos.URITurnOff, nil, 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, webos.ErrProtocol)
	assert.ErrorIs(t, err, webos.ErrClosedMidFlight)

	// The client notices the loss.
	assert.Eventually(t, func() bool {
		return client.State() == webos.StateClosed
	}, time.Second, 10*time.Millisecond)
}

func TestReconnectAfterClose(t *testing.T) {
	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		if err := tv.acceptRegistration(conn, "key"); err != nil {
			return
		}
		serveCommands(conn)
	})

	client, _ := newTestClient(t, tv.host, webos.Options{})
	require.NoError(t, client.BeginPairing(context.Background()))

	client.Close()
	assert.Equal(t, webos.StateClosed, client.State())

	// The next command transparently establishes a fresh session.
	_, err := client.Request(context.Background(), webos.URIGetVolume, nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(2), tv.connections.Load())
}

func TestSendButton(t *testing.T) {
	frames := make(chan string, 4)

	// Separate input socket endpoint handed out by the control endpoint.
	inputUpgrader := websocket.Upgrader{}
	inputSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := inputUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(data)
		}
	}))
	defer inputSrv.Close()
	inputURL := "ws://" + strings.TrimPrefix(inputSrv.URL, "http://")

	tv := newFakeTV(t, func(tv *fakeTV, conn *websocket.Conn) {
		if err := tv.acceptRegistration(conn, "key"); err != nil {
			return
		}
		for {
			var msg webos.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.URI != webos.URIPointerInputSocket {
				_ = conn.WriteJSON(webos.Message{
					Type:    webos.TypeResponse,
					ID:      msg.ID,
					Payload: json.RawMessage(`{"returnValue":true}`),
				})
				continue
			}
			_ = conn.WriteJSON(webos.Message{
				Type:    webos.TypeResponse,
				ID:      msg.ID,
				Payload: json.RawMessage(fmt.Sprintf(`{"returnValue":true,"socketPath":%q}`, inputURL)),
			})
		}
	})

	client, _ := newTestClient(t, tv.host, webos.Options{})

	t.Run("unknown button fails before any network traffic", func(t *testing.T) {
		err := client.SendButton(context.Background(), "warp", time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "warp")
	})

	t.Run("button press travels as an input socket frame", func(t *testing.T) {
		require.NoError(t, client.SendButton(context.Background(), "enter", 5*time.Second))

		select {
		case frame := <-frames:
			assert.Equal(t, "type:button\nname:ENTER\n\n", frame)
		case <-time.After(2 * time.Second):
			t.Fatal("no frame arrived on the input socket")
		}
	})

	t.Run("input socket is reused for subsequent presses", func(t *testing.T) {
		require.NoError(t, client.SendButton(context.Background(), "volume_up", 5*time.Second))

		select {
		case frame := <-frames:
			assert.Equal(t, "type:button\nname:VOLUMEUP\n\n", frame)
		case <-time.After(2 * time.Second):
			t.Fatal("no frame arrived on the input socket")
		}
		assert.Equal(t, int32(1), tv.connections.Load())
	})
}
