package webos

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisterMessage(t *testing.T) {
	t.Run("first pairing omits the client key", func(t *testing.T) {
		msg, err := newRegisterMessage("reg-1", "")
		require.NoError(t, err)

		assert.Equal(t, TypeRegister, msg.Type)
		assert.Equal(t, "reg-1", msg.ID)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.NotContains(t, payload, "client-key")
		assert.Equal(t, "PROMPT", payload["pairingType"])
		assert.Equal(t, false, payload["forcePairing"])
	})

	t.Run("stored key is carried in the payload", func(t *testing.T) {
		msg, err := newRegisterMessage("reg-2", "stored-key")
		require.NoError(t, err)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "stored-key", payload["client-key"])
	})

	t.Run("manifest requests the permission set", func(t *testing.T) {
		msg, err := newRegisterMessage("reg-3", "")
		require.NoError(t, err)

		var req registerRequest
		require.NoError(t, json.Unmarshal(msg.Payload, &req))
		assert.Equal(t, 1, req.Manifest.ManifestVersion)
		assert.Contains(t, req.Manifest.Permissions, "CONTROL_POWER")
		assert.Contains(t, req.Manifest.Permissions, "CONTROL_MOUSE_AND_KEYBOARD")
		assert.Contains(t, req.Manifest.Permissions, "READ_INSTALLED_APPS")
	})
}

func TestDecodeResult(t *testing.T) {
	t.Run("success envelope", func(t *testing.T) {
		assert.NoError(t, decodeResult(json.RawMessage(`{"returnValue":true,"volume":12}`)))
	})

	t.Run("empty payload is success", func(t *testing.T) {
		assert.NoError(t, decodeResult(nil))
		assert.NoError(t, decodeResult(json.RawMessage("")))
	})

	t.Run("failure with error text", func(t *testing.T) {
		err := decodeResult(json.RawMessage(`{"returnValue":false,"errorCode":404,"errorText":"no such app"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
		assert.Contains(t, err.Error(), "no such app")
	})

	t.Run("failure without error text", func(t *testing.T) {
		err := decodeResult(json.RawMessage(`{"returnValue":false}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("unparseable payload", func(t *testing.T) {
		err := decodeResult(json.RawMessage(`{{{`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
	})
}

func TestButtonCode(t *testing.T) {
	t.Run("known buttons resolve to socket codes", func(t *testing.T) {
		cases := map[string]string{
			"up":         "UP",
			"enter":      "ENTER",
			"ok":         "ENTER",
			"volumeup":   "VOLUMEUP",
			"back":       "BACK",
			"5":          "5",
			"channelup":  "CHANNELUP",
			"play":       "PLAY",
		}
		for name, want := range cases {
			code, ok := ButtonCode(name)
			require.True(t, ok, "button %q should resolve", name)
			assert.Equal(t, want, code)
		}
	})

	t.Run("names are case insensitive and tolerate underscores", func(t *testing.T) {
		for _, name := range []string{"VOLUME_UP", "Volume_Up", "volume_up", " volumeup "} {
			code, ok := ButtonCode(name)
			require.True(t, ok, "button %q should resolve", name)
			assert.Equal(t, "VOLUMEUP", code)
		}
	})

	t.Run("unknown buttons are rejected", func(t *testing.T) {
		_, ok := ButtonCode("teleport")
		assert.False(t, ok)
	})

	t.Run("button names are sorted and complete", func(t *testing.T) {
		names := ButtonNames()
		assert.IsType(t, []string{}, names)
		assert.Contains(t, names, "volumeup")
		assert.Contains(t, names, "enter")
		for i := 1; i < len(names); i++ {
			assert.LessOrEqual(t, names[i-1], names[i])
		}
	})
}
