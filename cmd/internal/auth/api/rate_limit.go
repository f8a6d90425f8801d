package authapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (h *Handler) checkLoginIPThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0, nil
	}
	cut := now.Add(-h.cfg.LoginIPWindow)
	count, err := h.audit.CountLoginFailuresByIP(ctx, ip, cut)
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.LoginIPMax {
		return true, h.cfg.LoginIPWindow, nil
	}
	return false, 0, nil
}

func (h *Handler) checkLoginIdentifierThrottle(ctx context.Context, identifier string, now time.Time) (bool, time.Duration, error) {
	if strings.TrimSpace(identifier) == "" {
		return false, 0, nil
	}
	cut := now.Add(-h.cfg.LockoutWindow)
	count, err := h.audit.CountLoginFailuresByIdentifier(ctx, identifier, cut)
	if err != nil {
		return false, 0, err
	}

	// Progressive lockout thresholds.
	switch {
	case h.cfg.LockoutSevereThreshold > 0 && count >= h.cfg.LockoutSevereThreshold:
		return true, h.cfg.LockoutSevereDuration, nil
	case h.cfg.LockoutLongThreshold > 0 && count >= h.cfg.LockoutLongThreshold:
		return true, h.cfg.LockoutLongDuration, nil
	case h.cfg.LockoutShortThreshold > 0 && count >= h.cfg.LockoutShortThreshold:
		return true, h.cfg.LockoutShortDuration, nil
	default:
		return false, 0, nil
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
