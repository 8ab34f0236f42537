package power

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Reachable pings the host once with a short timeout. Used for diagnostics
// only: it lets status reporting distinguish "TV unreachable" from "TV up
// but not paired", and never gates a power operation.
func Reachable(ctx context.Context, host string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	// Unprivileged UDP ping; no raw socket capability needed.
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
