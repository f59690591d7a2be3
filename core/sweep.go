package core

import (
	"context"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/PaulFidika/entitlekit/metrics"
)

// SweepExpired moves up to one batch of elapsed active records to inactive and
// reports how many it changed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	due, err := s.store.ListExpired(sctx, now, s.cfg.SweepBatch)
	cancel()
	if err != nil {
		return 0, newError(KindStoreUnavailable, "entitlement store unavailable", err)
	}
	n := 0
	for i := range due {
		if _, ok := entitlements.Expire(due[i], now); !ok {
			continue
		}
		// The store re-checks the condition; a renewal since ListExpired wins.
		sctx, cancel := s.storeCtx(ctx)
		rec, err := s.store.Expire(sctx, due[i].Key, now)
		cancel()
		if err != nil {
			return n, newError(KindStoreUnavailable, "could not save entitlement", err)
		}
		if rec == nil {
			s.log.WithField("user_key", due[i].Key).Debug("expiry skipped, record changed since listing")
			continue
		}
		s.events.LogTransition(ctx, "expiry", &due[i], *rec)
		n++
		metrics.ExpiredTotal.Inc()
	}
	if n > 0 {
		s.log.WithField("count", n).Info("expired entitlements swept")
	}
	return n, nil
}
