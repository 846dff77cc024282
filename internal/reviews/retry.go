package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"net"
	"strings"
	"time"

	"contrib-backend/internal/llm"
)

const (
	retryBaseDelay  = 500 * time.Millisecond
	retryMaxDelay   = 8 * time.Second
	retryMaxAttempt = 3
)

// retryingClient wraps an llm.Client with bounded exponential backoff and
// jitter on transient failures. Non-transient errors return immediately.
type retryingClient struct {
	base  llm.Client
	runID string
}

func newRetryingClient(base llm.Client, runID string) llm.Client {
	if base == nil {
		return nil
	}
	return retryingClient{base: base, runID: runID}
}

func (r retryingClient) GenerateReview(ctx context.Context, input llm.ReviewInput) (json.RawMessage, llm.Usage, error) {
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempt; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			log.Printf("llm retry attempt=%d run_id=%s stage=%d delay=%s error=%v",
				attempt, r.runID, input.Stage, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, llm.Usage{}, ctx.Err()
			}
		}
		raw, usage, err := r.base.GenerateReview(ctx, input)
		if err == nil || !isTransient(err) {
			return raw, usage, err
		}
		lastErr = err
	}
	return nil, llm.Usage{}, lastErr
}

func (r retryingClient) EstimateCost(input llm.EstimateInput) llm.Estimate {
	return r.base.EstimateCost(input)
}

// backoffDelay doubles the base delay per attempt and adds up to 50% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "http status 429") {
		return true
	}
	// A malformed completion is usually a one-off; a fresh request tends to fix it.
	if strings.Contains(msg, "invalid json") {
		return true
	}
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server error") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}
