package webos

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Default control endpoint port for webOS TVs.
const ControlPort = 3000

// Message frame types used on the control socket.
const (
	TypeRegister   = "register"
	TypeRegistered = "registered"
	TypeRequest    = "request"
	TypeResponse   = "response"
	TypeError      = "error"
)

// Luna service URIs for the operations this client issues.
const (
	URIGetVolume          = "ssap://audio/getVolume"
	URIForegroundAppInfo  = "ssap://com.webos.applicationManager/getForegroundAppInfo"
	URIListApps           = "ssap://com.webos.applicationManager/listApps"
	URILaunchApp          = "ssap://system.launcher/launch"
	URITurnOff            = "ssap://system/turnOff"
	URITurnOn             = "ssap://system/turnOn"
	URIPointerInputSocket = "ssap://com.webos.service.networkinput/getPointerInputSocket"
)

// Message is a single frame on the control socket. Requests carry an ID, a
// URI and a payload; responses echo the ID back with a result payload.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	URI     string          `json:"uri,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// registerRequest is the payload of the initial register frame. ClientKey is
// omitted on first-time pairing, which makes the TV show the prompt.
type registerRequest struct {
	ForcePairing bool             `json:"forcePairing"`
	PairingType  string           `json:"pairingType"`
	Manifest     registerManifest `json:"manifest"`
	ClientKey    string           `json:"client-key,omitempty"`
}

type registerManifest struct {
	ManifestVersion int      `json:"manifestVersion"`
	Permissions     []string `json:"permissions"`
}

// registerResponse covers both the intermediate prompt response and the
// final registered payload.
type registerResponse struct {
	PairingType string `json:"pairingType,omitempty"`
	ClientKey   string `json:"client-key,omitempty"`
}

// manifestPermissions is the permission set requested at registration. It
// covers everything the command surface needs; the TV grants the whole set
// with a single prompt acceptance.
var manifestPermissions = []string{
	"LAUNCH",
	"LAUNCH_WEBAPP",
	"APP_TO_APP",
	"CONTROL_AUDIO",
	"CONTROL_DISPLAY",
	"CONTROL_INPUT_JOYSTICK",
	"CONTROL_INPUT_MEDIA_PLAYBACK",
	"CONTROL_INPUT_TV",
	"CONTROL_MOUSE_AND_KEYBOARD",
	"CONTROL_POWER",
	"READ_CURRENT_CHANNEL",
	"READ_INPUT_DEVICE_LIST",
	"READ_INSTALLED_APPS",
	"READ_NETWORK_STATE",
	"READ_RUNNING_APPS",
	"READ_TV_CHANNEL_LIST",
	"WRITE_NOTIFICATION_TOAST",
}

// newRegisterMessage builds the register frame, carrying the stored client
// key if one exists.
func newRegisterMessage(id, clientKey string) (*Message, error) {
	payload, err := json.Marshal(registerRequest{
		ForcePairing: false,
		PairingType:  "PROMPT",
		Manifest: registerManifest{
			ManifestVersion: 1,
			Permissions:     manifestPermissions,
		},
		ClientKey: clientKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal register payload: %w", err)
	}

	return &Message{
		Type:    TypeRegister,
		ID:      id,
		Payload: payload,
	}, nil
}

// commandResult is the common envelope of every luna response payload.
type commandResult struct {
	ReturnValue bool   `json:"returnValue"`
	ErrorCode   int    `json:"errorCode,omitempty"`
	ErrorText   string `json:"errorText,omitempty"`
}

// decodeResult checks the returnValue envelope of a response payload and
// surfaces the TV-reported error text if the call failed.
func decodeResult(payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}

	var result commandResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("%w: unparseable response payload: %v", ErrProtocol, err)
	}
	if !result.ReturnValue {
		if result.ErrorText != "" {
			return fmt.Errorf("%w: tv error %d: %s", ErrProtocol, result.ErrorCode, result.ErrorText)
		}
		return fmt.Errorf("%w: tv reported failure", ErrProtocol)
	}
	return nil
}

// VolumeStatus is the result of a getVolume query, also used as the basic
// readiness check during power-on verification.
type VolumeStatus struct {
	ReturnValue bool `json:"returnValue"`
	Volume      int  `json:"volume"`
	Muted       bool `json:"muted"`
}

// ForegroundApp is the result of a getForegroundAppInfo query.
type ForegroundApp struct {
	AppID     string `json:"appId"`
	WindowID  string `json:"windowId,omitempty"`
	ProcessID string `json:"processId,omitempty"`
}

// App is a single installed application entry.
type App struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type appList struct {
	Apps []App `json:"apps"`
}

// Buttons accepted by the pointer input socket, keyed by the lowercase names
// the command surface exposes.
var buttonCodes = map[string]string{
	"up":          "UP",
	"down":        "DOWN",
	"left":        "LEFT",
	"right":       "RIGHT",
	"enter":       "ENTER",
	"ok":          "ENTER",
	"back":        "BACK",
	"exit":        "EXIT",
	"home":        "HOME",
	"menu":        "MENU",
	"info":        "INFO",
	"dash":        "DASH",
	"mute":        "MUTE",
	"volumeup":    "VOLUMEUP",
	"volumedown":  "VOLUMEDOWN",
	"channelup":   "CHANNELUP",
	"channeldown": "CHANNELDOWN",
	"play":        "PLAY",
	"pause":       "PAUSE",
	"stop":        "STOP",
	"rewind":      "REWIND",
	"fastforward": "FASTFORWARD",
	"red":         "RED",
	"green":       "GREEN",
	"yellow":      "YELLOW",
	"blue":        "BLUE",
	"0":           "0",
	"1":           "1",
	"2":           "2",
	"3":           "3",
	"4":           "4",
	"5":           "5",
	"6":           "6",
	"7":           "7",
	"8":           "8",
	"9":           "9",
}

// ButtonCode resolves a user-facing button name to the code the input socket
// expects. Names are case-insensitive and tolerate underscores
// ("volume_up" == "volumeup").
func ButtonCode(name string) (string, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
	code, ok := buttonCodes[normalized]
	return code, ok
}

// ButtonNames returns the accepted button names, for error messages and CLI
// help output.
func ButtonNames() []string {
	names := make([]string, 0, len(buttonCodes))
	for name := range buttonCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
