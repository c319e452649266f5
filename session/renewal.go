package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/tokenstore"
)

const (
	minRenewDelay   = time.Second
	renewRetryDelay = 30 * time.Second
)

// startRenewalLocked replaces any running renewal loop with one bound to
// the current epoch.
func (c *Controller) startRenewalLocked() {
	c.stopRenewalLocked()
	if c.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.renewCancel = cancel
	epoch := c.epoch
	c.renewWG.Add(1)
	go func() {
		defer c.renewWG.Done()
		c.renewLoop(ctx, epoch)
	}()
}

// stopRenewalLocked cancels the loop without waiting, so it is safe to call
// from the loop itself.
func (c *Controller) stopRenewalLocked() {
	if c.renewCancel != nil {
		c.renewCancel()
		c.renewCancel = nil
	}
}

func (c *Controller) renewLoop(ctx context.Context, epoch uint64) {
	failed := false
	for {
		delay := c.nextRenewal(time.Now())
		if failed && delay < renewRetryDelay {
			delay = min(renewRetryDelay, c.cfg.RenewInterval)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		_, err := c.refresher.Refresh(ctx)
		switch {
		case err == nil:
			failed = false
			c.logger.Debug("credentials renewed")
			continue
		case ctx.Err() != nil:
			return
		case authapi.IsTransient(err):
			failed = true
			c.logger.Warn("credential renewal failed, will retry", "error", err)
			continue
		}

		c.mu.Lock()
		current := epoch == c.epoch
		c.mu.Unlock()
		if !current {
			return
		}
		c.logger.Info("credential renewal rejected", "reason", authapi.KindOf(err).String())
		c.ExpireSession(err)
		return
	}
}

// nextRenewal returns the delay until the next proactive renewal: the
// configured interval, or sooner when the stored access credential is a JWT
// that expires within it. The skew never exceeds half the credential's
// lifetime, so a short-lived credential is renewed midway rather than
// immediately after every refresh.
func (c *Controller) nextRenewal(now time.Time) time.Duration {
	delay := c.cfg.RenewInterval
	token, ok := c.store.Get(tokenstore.AccessToken)
	if !ok {
		return delay
	}
	exp, iat, ok := tokenTimes(token)
	if !ok {
		return delay
	}
	lifetime := exp.Sub(now)
	if !iat.IsZero() && iat.Before(exp) {
		lifetime = exp.Sub(iat)
	}
	skew := c.cfg.RenewSkew
	if lifetime > 0 {
		skew = min(skew, lifetime/2)
	}
	if until := exp.Sub(now) - skew; until < delay {
		delay = until
	}
	return max(delay, minRenewDelay)
}

// tokenTimes reads the exp and iat claims of a JWT without verifying it.
// The signature is the backend's concern; the client only schedules around
// it. iat is zero when absent.
func tokenTimes(token string) (exp, iat time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, time.Time{}, false
	}
	e, err := claims.GetExpirationTime()
	if err != nil || e == nil {
		return time.Time{}, time.Time{}, false
	}
	if i, err := claims.GetIssuedAt(); err == nil && i != nil {
		iat = i.Time
	}
	return e.Time, iat, true
}
