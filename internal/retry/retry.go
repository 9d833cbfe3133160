// Package retry repeats greylisted verifications until the provider gives a
// definitive answer or the retry budget runs out.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

type State int

const (
	StateIdle State = iota
	StateWaiting
	StateRetrying
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Info is attached to a result once at least one retry happened.
type Info struct {
	Retried         bool `json:"retried"`
	RetryCount      int  `json:"retryCount"`
	RetrySuccessful bool `json:"retrySuccessful"`
}

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Wait is the wall-clock Sleeper.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VerifyFunc performs one verification attempt.
type VerifyFunc func(ctx context.Context) (*verifier.EmailVerificationResult, error)

type Controller struct {
	Delay      time.Duration
	MaxRetries int
	Sleep      Sleeper

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

func New(delay time.Duration, maxRetries int) *Controller {
	return &Controller{
		Delay:      delay,
		MaxRetries: maxRetries,
		Sleep:      Wait,
	}
}

// Run retries verify while the working result stays greylisted. The
// returned result is always the latest attempt. Info is nil when first was
// not greylisted or no retry budget exists. Errors from verify or the
// sleeper end the loop and are returned as-is.
func (c *Controller) Run(ctx context.Context, first *verifier.EmailVerificationResult, verify VerifyFunc) (*verifier.EmailVerificationResult, *Info, error) {
	if !first.Greylisted() || c.MaxRetries <= 0 {
		return first, nil, nil
	}

	sleep := c.Sleep
	if sleep == nil {
		sleep = Wait
	}

	current := first
	info := &Info{}
	state := StateIdle

	for state != StateDone {
		switch state {
		case StateIdle:
			state = c.transition(state, StateWaiting)

		case StateWaiting:
			slog.DebugContext(ctx, "waiting before greylist retry",
				"email", first.Email,
				"delay", c.Delay,
				"attempt", info.RetryCount+1,
				"max_retries", c.MaxRetries)

			if err := sleep(ctx, c.Delay); err != nil {
				return current, retriedInfo(info), fmt.Errorf("greylist retry interrupted: %w", err)
			}
			state = c.transition(state, StateRetrying)

		case StateRetrying:
			info.Retried = true
			info.RetryCount++

			res, err := verify(ctx)
			if err != nil {
				return current, info, err
			}
			current = res

			switch {
			case !current.Greylisted():
				info.RetrySuccessful = true
				state = c.transition(state, StateDone)
			case info.RetryCount < c.MaxRetries:
				state = c.transition(state, StateWaiting)
			default:
				state = c.transition(state, StateDone)
			}
		}
	}

	slog.DebugContext(ctx, "greylist retry finished",
		"email", first.Email,
		"retry_count", info.RetryCount,
		"successful", info.RetrySuccessful)

	return current, info, nil
}

func (c *Controller) transition(from, to State) State {
	if c.OnTransition != nil {
		c.OnTransition(from, to)
	}
	return to
}

func retriedInfo(info *Info) *Info {
	if info.Retried {
		return info
	}
	return nil
}
