package bundler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stable-net/delegator-go/account"
	"github.com/stable-net/delegator-go/delegation"
)

// State is the lifecycle position of a submitted operation.
type State int

const (
	StateBuilt State = iota
	StateSubmitted
	StateConfirmed
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Account is the smart account an operation is submitted from.
type Account interface {
	Address() common.Address
	FactoryCall() (common.Address, []byte, error)
}

// OperationHandle tracks one operation. It is safe for concurrent use.
type OperationHandle struct {
	ID      string
	Account common.Address

	mu      sync.Mutex
	calls   []Call
	state   State
	hash    common.Hash
	receipt *Receipt
}

// State returns the current lifecycle state.
func (h *OperationHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Hash is zero until the relay accepted the operation.
func (h *OperationHandle) Hash() common.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hash
}

// Receipt is nil until the operation settled.
func (h *OperationHandle) Receipt() *Receipt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.receipt
}

// Calls returns the calls as submitted, including a prepended deployment.
func (h *OperationHandle) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	for i, c := range h.calls {
		out[i] = Call{To: c.To, Value: c.Value, Data: common.CopyBytes(c.Data)}
	}
	return out
}

func (h *OperationHandle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// PollPolicy controls receipt polling.
type PollPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Timeout applies when AwaitReceipt is called with a non-positive timeout.
	Timeout time.Duration
}

// DefaultPollPolicy polls from 500ms backing off to 5s, for up to two minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      1.5,
		Timeout:         2 * time.Minute,
	}
}

func (p PollPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithPollPolicy replaces DefaultPollPolicy.
func WithPollPolicy(p PollPolicy) Option {
	return func(s *Submitter) { s.poll = p }
}

// WithLogger sets the submitter logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// Submitter turns calls and delegation redemptions into user operations
// and follows them to settlement. It never resubmits on its own.
type Submitter struct {
	relay   Relay
	checker account.DeploymentChecker
	env     *delegation.Environment
	poll    PollPolicy
	logger  *zap.Logger
}

// NewSubmitter returns a submitter sending through relay. checker decides
// whether a deployment call must be prepended.
func NewSubmitter(relay Relay, checker account.DeploymentChecker, env *delegation.Environment, opts ...Option) *Submitter {
	s := &Submitter{
		relay:   relay,
		checker: checker,
		env:     env,
		poll:    DefaultPollPolicy(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends calls from acct. An undeployed account gets its deployment
// call prepended.
func (s *Submitter) Submit(ctx context.Context, acct Account, calls []Call, fees FeeOracle) (*OperationHandle, error) {
	h := &OperationHandle{
		ID:      uuid.NewString(),
		Account: acct.Address(),
		state:   StateBuilt,
	}
	if len(calls) == 0 {
		return h, &SubmissionError{Kind: RejectionMalformed, Reason: "operation has no calls", OperationID: h.ID}
	}

	deployed, err := s.checker.IsDeployed(ctx, h.Account)
	if err != nil {
		return h, fmt.Errorf("failed to check deployment of %s: %w", h.Account.Hex(), err)
	}
	if !deployed {
		factory, data, err := acct.FactoryCall()
		if err != nil {
			return h, fmt.Errorf("account %s is not deployed: %w", h.Account.Hex(), err)
		}
		calls = append([]Call{{To: factory, Data: data}}, calls...)
		s.logger.Info("account not deployed, prepending deployment",
			zap.String("id", h.ID),
			zap.String("account", h.Account.Hex()),
			zap.String("factory", factory.Hex()))
	}
	h.calls = calls

	hash, err := s.relay.SendOperation(ctx, Operation{Account: h.Account, Calls: calls}, fees)
	if err != nil {
		var subErr *SubmissionError
		if !errors.As(err, &subErr) {
			subErr = &SubmissionError{Kind: RejectionUnknown, Reason: err.Error(), Err: err}
		}
		subErr.OperationID = h.ID
		s.logger.Warn("operation rejected",
			zap.String("id", h.ID),
			zap.Stringer("kind", subErr.Kind),
			zap.String("reason", subErr.Reason))
		return h, subErr
	}

	h.mu.Lock()
	h.hash = hash
	h.state = StateSubmitted
	h.mu.Unlock()
	s.logger.Info("operation submitted",
		zap.String("id", h.ID),
		zap.String("hash", hash.Hex()),
		zap.Int("calls", len(calls)))
	return h, nil
}

// Redeem validates every chain against acct, then submits one
// redeemDelegations call executed by acct itself. Validation fails before
// any network access.
func (s *Submitter) Redeem(ctx context.Context, acct Account, chains []delegation.Chain, modes []delegation.ExecutionMode, executions [][]delegation.Execution, fees FeeOracle) (*OperationHandle, error) {
	redeemer := acct.Address()
	for i, chain := range chains {
		if err := delegation.ValidateChain(chain, redeemer, s.env); err != nil {
			return nil, fmt.Errorf("chain %d: %w", i, err)
		}
	}
	data, err := delegation.EncodeRedemption(chains, modes, executions)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, acct, []Call{{To: redeemer, Data: data}}, fees)
}

// AwaitReceipt polls until h settles or timeout elapses. A receipt with
// Success false moves h to StateFailed and is returned without error.
// Cancelling ctx stops polling and leaves the state unchanged.
func (s *Submitter) AwaitReceipt(ctx context.Context, h *OperationHandle, timeout time.Duration) (*Receipt, error) {
	h.mu.Lock()
	state, hash, receipt := h.state, h.hash, h.receipt
	h.mu.Unlock()

	switch state {
	case StateConfirmed, StateFailed:
		return receipt, nil
	case StateBuilt:
		return nil, &OperationError{ID: h.ID, State: state, Err: ErrNotSubmitted}
	}

	if timeout <= 0 {
		timeout = s.poll.Timeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var got *Receipt
	poll := func() error {
		r, err := s.relay.OperationReceipt(pollCtx, hash)
		if err != nil {
			s.logger.Debug("receipt poll failed", zap.String("id", h.ID), zap.Error(err))
			return err
		}
		if r == nil {
			return errPending
		}
		got = r
		return nil
	}
	err := backoff.Retry(poll, backoff.WithContext(s.poll.backOff(), pollCtx))
	if got != nil {
		next := StateConfirmed
		if !got.Success {
			next = StateFailed
		}
		h.mu.Lock()
		h.state = next
		h.receipt = got
		h.mu.Unlock()
		s.logger.Info("operation settled",
			zap.String("id", h.ID),
			zap.String("hash", hash.Hex()),
			zap.String("tx", got.TransactionHash.Hex()),
			zap.Bool("success", got.Success))
		return got, nil
	}

	if ctx.Err() != nil {
		return nil, &OperationError{ID: h.ID, Hash: hash, State: h.State(), Err: ctx.Err()}
	}
	if pollCtx.Err() != nil {
		h.setState(StateTimedOut)
		s.logger.Warn("operation receipt timed out",
			zap.String("id", h.ID),
			zap.String("hash", hash.Hex()),
			zap.Duration("timeout", timeout))
		return nil, &OperationError{ID: h.ID, Hash: hash, State: StateTimedOut, Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
	}
	return nil, &OperationError{ID: h.ID, Hash: hash, State: h.State(), Err: err}
}

var errPending = errors.New("receipt pending")
