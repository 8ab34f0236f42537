package power

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"iris/internal/logger"
	"iris/internal/webos"
)

// ErrVerifyTimeout means the TV did not reach a ready session within the
// power-on polling budget.
var ErrVerifyTimeout = errors.New("tv did not become ready within the power-on budget")

// Commander is the slice of the session client the orchestrator drives.
// *webos.Client satisfies it.
type Commander interface {
	Request(ctx context.Context, uri string, payload any, timeout time.Duration) (json.RawMessage, error)
}

// Options configures the power orchestrator.
type Options struct {
	// WakePort is the UDP port the magic packet is sent to.
	WakePort int

	// PollInterval is the fixed spacing between readiness polls. TV boot
	// time is roughly constant, so no backoff is applied.
	PollInterval time.Duration

	// PollBudget is the total wait allowed for power-on verification.
	PollBudget time.Duration

	// CommandTimeout bounds each individual readiness query.
	CommandTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.WakePort == 0 {
		o.WakePort = DefaultWakePort
	}
	if o.PollInterval == 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.PollBudget == 0 {
		o.PollBudget = 30 * time.Second
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = 5 * time.Second
	}
}

// Orchestrator layers network-level wake over session-level readiness
// polling, because a powered-off TV cannot speak the session protocol.
type Orchestrator struct {
	host   string
	mac    string
	sess   Commander
	opts   Options
	logger zerolog.Logger
}

// NewOrchestrator creates an orchestrator for one TV.
func NewOrchestrator(host, mac string, sess Commander, opts Options) *Orchestrator {
	opts.setDefaults()
	return &Orchestrator{
		host:   host,
		mac:    mac,
		sess:   sess,
		opts:   opts,
		logger: logger.New(),
	}
}

// WakeOnly broadcasts the wake packet and returns. Fire-and-forget: success
// means the packet left, regardless of TV power state.
func (o *Orchestrator) WakeOnly() error {
	if err := Wake(o.mac, o.host, o.opts.WakePort); err != nil {
		return err
	}

	o.logger.Info().
		Str("host", o.host).
		Str("mac", o.mac).
		Msg("Wake packet sent")

	return nil
}

// PowerOn wakes the TV and, when verify is set, polls at a fixed interval
// until a session is ready and a basic status query succeeds, or the budget
// is exhausted.
func (o *Orchestrator) PowerOn(ctx context.Context, verify bool) error {
	if err := o.WakeOnly(); err != nil {
		return err
	}

	// Best-effort in-protocol power-on for firmwares that support it. A TV
	// that is still booting cannot answer, which is fine.
	attemptCtx, cancel := context.WithTimeout(ctx, o.opts.CommandTimeout)
	if _, err := o.sess.Request(attemptCtx, webos.URITurnOn, nil, o.opts.CommandTimeout); err != nil {
		o.logger.Debug().
			Err(err).
			Msg("In-protocol power-on attempt did not complete")
	}
	cancel()

	if !verify {
		return nil
	}
	return o.verifyReady(ctx)
}

// verifyReady polls session establishment until the TV answers a status
// query. Connection failures during the window count as "not yet ready";
// only a rejected pairing escalates early, since waiting cannot fix it.
func (o *Orchestrator) verifyReady(ctx context.Context) error {
	deadline := time.Now().Add(o.opts.PollBudget)
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	o.logger.Info().
		Str("host", o.host).
		Dur("budget", o.opts.PollBudget).
		Dur("interval", o.opts.PollInterval).
		Msg("Verifying TV readiness")

	attempt := 0
	for {
		attempt++
		err := o.pollOnce(ctx)
		if err == nil {
			o.logger.Info().
				Int("attempts", attempt).
				Msg("TV is ready")
			return nil
		}
		if errors.Is(err, webos.ErrPairingRejected) {
			return err
		}

		o.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Msg("TV not ready yet")

		if !time.Now().Before(deadline) {
			return ErrVerifyTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce runs one bounded readiness query.
func (o *Orchestrator) pollOnce(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, o.opts.CommandTimeout)
	defer cancel()

	_, err := o.sess.Request(pollCtx, webos.URIGetVolume, nil, o.opts.CommandTimeout)
	return err
}

// PowerOff issues the standby command. The TV dropping the session right
// after accepting is the normal shutdown path, not a failure.
func (o *Orchestrator) PowerOff(ctx context.Context) error {
	_, err := o.sess.Request(ctx, webos.URITurnOff, nil, o.opts.CommandTimeout)
	if err != nil && !errors.Is(err, webos.ErrClosedMidFlight) {
		return err
	}

	o.logger.Info().
		Str("host", o.host).
		Msg("Standby command accepted")

	return nil
}
