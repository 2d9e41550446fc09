package harvest

import "errors"

// Outcome classifies a single fetch attempt for one identifier.
type Outcome string

// Outcome values consumed by the rate governor.
const (
	OutcomeSuccess          Outcome = "success"
	OutcomeRateLimited      Outcome = "rate_limited"
	OutcomeHardBlocked      Outcome = "hard_blocked"
	OutcomeTransientFailure Outcome = "transient_failure"
)

// Sentinel errors raised by fetchers. ErrHardBlocked is the only error
// that crosses component boundaries as a control signal; everything else
// is reduced to an Outcome at the worker.
var (
	// ErrHardBlocked marks the remote service refusing us outright: a
	// 403 status or a captcha interstitial in the page body.
	ErrHardBlocked = errors.New("hard blocked by remote")

	// ErrRateLimited marks a 429 that survived the in-fetch retry ladder.
	ErrRateLimited = errors.New("rate limited by remote")
)

// Classify reduces a fetch result to an Outcome. A nil error is a
// success; block and rate-limit sentinels take precedence over the
// generic transient bucket.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrHardBlocked):
		return OutcomeHardBlocked
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeTransientFailure
	}
}
