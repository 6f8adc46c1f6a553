package insights

import (
	"context"
	"errors"
	"fmt"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/metrics"
	"go.uber.org/zap"
)

// ResilientAdvisor tries the remote advisor within the policy timeout,
// retries at most config.MaxAdvisoryRetries times and then falls back to
// templates. Advise never fails.
type ResilientAdvisor struct {
	remote   Advisor
	fallback TemplateAdvisor
	policy   *config.Live
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewResilientAdvisor wraps remote. A nil remote always uses templates.
func NewResilientAdvisor(remote Advisor, policy *config.Live, logger *zap.Logger, m *metrics.Collector) *ResilientAdvisor {
	return &ResilientAdvisor{remote: remote, policy: policy, logger: logger, metrics: m}
}

// Advise returns the advice and which source phrased it.
func (r *ResilientAdvisor) Advise(ctx context.Context, f Finding) (Advice, string) {
	if r.remote != nil {
		p := r.policy.Policy()
		retries := min(max(p.AdvisoryRetries, 0), config.MaxAdvisoryRetries)
		if p.AdvisoryTimeout <= 0 {
			p.AdvisoryTimeout = config.DefaultPolicy().AdvisoryTimeout
		}
		for attempt := 0; attempt <= retries; attempt++ {
			if attempt > 0 {
				r.metrics.AdvisoryCall("retry")
			}
			adv, err := r.once(ctx, f, p)
			if err == nil {
				r.metrics.AdvisoryCall("ok")
				return adv, SourceAdvisory
			}
			r.logger.Warn("advisory call failed",
				zap.String("insight_type", string(f.Type)),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
		}
		r.metrics.AdvisoryCall("fallback")
	}

	adv, _ := r.fallback.Advise(ctx, f)
	return adv, SourceTemplate
}

func (r *ResilientAdvisor) once(ctx context.Context, f Finding, p config.Policy) (Advice, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.AdvisoryTimeout)
	defer cancel()

	type result struct {
		adv Advice
		err error
	}
	ch := make(chan result, 1)
	go func() {
		adv, err := r.remote.Advise(callCtx, f)
		ch <- result{adv, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && !errors.Is(res.err, ErrAdvisoryUnavailable) {
			return Advice{}, fmt.Errorf("%w: %v", ErrAdvisoryUnavailable, res.err)
		}
		return res.adv, res.err
	case <-callCtx.Done():
		return Advice{}, fmt.Errorf("%w: %v", ErrAdvisoryUnavailable, callCtx.Err())
	}
}
