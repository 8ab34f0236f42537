package tv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"iris/internal/credstore"
	"iris/internal/logger"
	"iris/internal/power"
	"iris/internal/webos"
)

// Config carries the static device identity and the default wait durations.
type Config struct {
	Host       string
	MAC        string
	DefaultApp string

	CommandTimeout time.Duration
	ProbeTimeout   time.Duration

	Session webos.Options
	Power   power.Options
}

func (c *Config) setDefaults() {
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 2 * time.Second
	}
	c.Session.MAC = c.MAC
}

// Controller is the command surface consumed by the HTTP facade and the CLI.
// It owns the single session client and the power orchestrator for one TV
// and holds no HTTP concerns of its own.
type Controller struct {
	cfg    Config
	client *webos.Client
	power  *power.Orchestrator
	logger zerolog.Logger
}

// NewController wires a controller for the configured TV.
func NewController(store *credstore.Store, cfg Config) *Controller {
	cfg.setDefaults()
	client := webos.NewClient(cfg.Host, store, cfg.Session)

	return &Controller{
		cfg:    cfg,
		client: client,
		power:  power.NewOrchestrator(cfg.Host, cfg.MAC, client, cfg.Power),
		logger: logger.New(),
	}
}

// Status is the basic TV status reported by getStatus.
type Status struct {
	Session string `json:"session"`
	Paired  bool   `json:"paired"`
	Volume  int    `json:"volume"`
	Muted   bool   `json:"muted"`
}

// Diagnostics describes the TV from the outside, without requiring a
// session. Reachable uses an ICMP probe so "TV unreachable" and "TV up but
// needs pairing" stay distinguishable.
type Diagnostics struct {
	Host      string `json:"host"`
	Session   string `json:"session"`
	Paired    bool   `json:"paired"`
	Reachable bool   `json:"reachable"`
}

// PowerOnViaNetwork sends the wake packet only. Fire-and-forget.
func (c *Controller) PowerOnViaNetwork() error {
	return c.power.WakeOnly()
}

// PowerOnViaSession wakes the TV and optionally verifies readiness by
// polling session establishment within the configured budget.
func (c *Controller) PowerOnViaSession(ctx context.Context, verify bool) error {
	return c.power.PowerOn(ctx, verify)
}

// PowerOff puts the TV into standby over the session.
func (c *Controller) PowerOff(ctx context.Context) error {
	return c.power.PowerOff(ctx)
}

// Status queries volume and mute state as the basic status check.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	payload, err := c.client.Request(ctx, webos.URIGetVolume, nil, c.cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}

	var vol webos.VolumeStatus
	if err := json.Unmarshal(payload, &vol); err != nil {
		return nil, fmt.Errorf("%w: unparseable volume status: %v", webos.ErrProtocol, err)
	}

	return &Status{
		Session: c.client.State().String(),
		Paired:  c.client.Paired(),
		Volume:  vol.Volume,
		Muted:   vol.Muted,
	}, nil
}

// Diagnostics reports pairing and reachability without touching the session.
func (c *Controller) Diagnostics(ctx context.Context) Diagnostics {
	return Diagnostics{
		Host:      c.cfg.Host,
		Session:   c.client.State().String(),
		Paired:    c.client.Paired(),
		Reachable: power.Reachable(ctx, c.cfg.Host, c.cfg.ProbeTimeout),
	}
}

// CurrentApp returns the foreground application.
func (c *Controller) CurrentApp(ctx context.Context) (*webos.ForegroundApp, error) {
	payload, err := c.client.Request(ctx, webos.URIForegroundAppInfo, nil, c.cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}

	var app webos.ForegroundApp
	if err := json.Unmarshal(payload, &app); err != nil {
		return nil, fmt.Errorf("%w: unparseable foreground app info: %v", webos.ErrProtocol, err)
	}
	return &app, nil
}

// ListApps returns the installed applications.
func (c *Controller) ListApps(ctx context.Context) ([]webos.App, error) {
	payload, err := c.client.Request(ctx, webos.URIListApps, nil, c.cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}

	var list struct {
		Apps []webos.App `json:"apps"`
	}
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, fmt.Errorf("%w: unparseable app list: %v", webos.ErrProtocol, err)
	}
	return list.Apps, nil
}

// LaunchApp starts an application; an empty id launches the configured
// default app. Returns the id actually launched.
func (c *Controller) LaunchApp(ctx context.Context, appID string) (string, error) {
	if appID == "" {
		appID = c.cfg.DefaultApp
	}
	if appID == "" {
		return "", fmt.Errorf("no app id given and no default app configured")
	}

	params := map[string]string{"id": appID}
	if _, err := c.client.Request(ctx, webos.URILaunchApp, params, c.cfg.CommandTimeout); err != nil {
		return "", err
	}

	c.logger.Info().
		Str("app_id", appID).
		Msg("App launched")

	return appID, nil
}

// SendButton delivers a remote-button event over the pointer input socket.
func (c *Controller) SendButton(ctx context.Context, name string) error {
	return c.client.SendButton(ctx, name, c.cfg.CommandTimeout)
}

// BeginPairing drives the registration handshake, blocking until the prompt
// is accepted or the pairing window closes.
func (c *Controller) BeginPairing(ctx context.Context) error {
	return c.client.BeginPairing(ctx)
}

// SessionState returns the current session lifecycle state.
func (c *Controller) SessionState() string {
	return c.client.State().String()
}

// Paired reports whether a pairing credential is stored for the TV.
func (c *Controller) Paired() bool {
	return c.client.Paired()
}

// Close tears down the live session, if any.
func (c *Controller) Close() {
	c.client.Close()
}
