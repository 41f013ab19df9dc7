package bundler_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stable-net/delegator-go/account"
	"github.com/stable-net/delegator-go/bundler"
	"github.com/stable-net/delegator-go/bundler/mocks"
	"github.com/stable-net/delegator-go/delegation"
)

var (
	aliceKey  = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
	bobKey    = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	recipient = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	chainID   = big.NewInt(11155111)
	proxyCode = common.FromHex("0x608060405260405161040a38038061040a833981016040819052")
	fastPoll  = bundler.PollPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 1.5, Timeout: time.Second}
)

type deployment map[common.Address]bool

func (d deployment) IsDeployed(_ context.Context, addr common.Address) (bool, error) {
	return d[addr], nil
}

// countingChecker counts deployment lookups.
type countingChecker struct{ calls atomic.Int32 }

func (c *countingChecker) IsDeployed(context.Context, common.Address) (bool, error) {
	c.calls.Add(1)
	return true, nil
}

func environment(t *testing.T) *delegation.Environment {
	t.Helper()
	env, err := delegation.NewEnvironment(delegation.EnvironmentConfig{
		DelegationManager: "0x00000000000000000000000000000000000000d1",
		EntryPoint:        "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		SimpleFactory:     "0x00000000000000000000000000000000000000f1",
		HybridDeleGator:   "0x00000000000000000000000000000000000000a1",
		CaveatEnforcers: map[string]string{
			delegation.AllowedTargetsEnforcer: "0x00000000000000000000000000000000000000e1",
			delegation.ValueLteEnforcer:       "0x00000000000000000000000000000000000000e2",
		},
	})
	require.NoError(t, err)
	return env
}

func hybridAccount(t *testing.T, env *delegation.Environment, hexKey string) *account.HybridAccount {
	t.Helper()
	key, err := crypto.HexToECDSA(hexKey)
	require.NoError(t, err)
	acct, err := account.NewHybridAccount(env, key, account.Options{ProxyCreationCode: proxyCode})
	require.NoError(t, err)
	return acct
}

// rootChain has Alice's EOA grant delegate a root delegation with salt
// 0xABCD1234 under caveats.
func rootChain(t *testing.T, env *delegation.Environment, delegate common.Address, caveats delegation.Caveats) delegation.Chain {
	t.Helper()
	key, err := crypto.HexToECDSA(aliceKey)
	require.NoError(t, err)
	alice := crypto.PubkeyToAddress(key.PublicKey)

	d, err := delegation.BuildRoot(delegate.Hex(), alice.Hex(), caveats, big.NewInt(0xABCD1234))
	require.NoError(t, err)
	signed, err := delegation.NewEOASigner(key, env.Domain(chainID)).Sign(context.Background(), d)
	require.NoError(t, err)
	return delegation.Chain{signed}
}

// transferChain limits delegate to a transfer of up to 0.001 ether to
// recipient.
func transferChain(t *testing.T, env *delegation.Environment, delegate common.Address) delegation.Chain {
	t.Helper()
	caveats, err := delegation.NewCaveatBuilder(env).
		AllowedTargets(recipient).
		ValueLte(big.NewInt(1_000_000_000_000_000)).
		Build()
	require.NoError(t, err)
	return rootChain(t, env, delegate, caveats)
}

func transfer() [][]delegation.Execution {
	return [][]delegation.Execution{{{
		Target:   recipient,
		Value:    *uint256.NewInt(1_000_000_000_000_000),
		CallData: common.FromHex("0x"),
	}}}
}

func TestRedeemEndToEnd(t *testing.T) {
	env := environment(t)
	bob := hybridAccount(t, env, bobKey)

	tests := []struct {
		name  string
		chain delegation.Chain
	}{
		{"unrestricted", rootChain(t, env, bob.Address(), delegation.EmptyCaveats())},
		{"transfer limited", transferChain(t, env, bob.Address())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chains := []delegation.Chain{tt.chain}
			modes := []delegation.ExecutionMode{delegation.SingleDefaultMode}
			want, err := delegation.EncodeRedemption(chains, modes, transfer())
			require.NoError(t, err)

			relay := mocks.NewMockRelayForTest(t)
			opHash := common.HexToHash("0x5e1f")
			txHash := common.HexToHash("0x7a11")

			relay.EXPECT().
				SendOperation(gomock.Any(), gomock.Any(), gomock.Nil()).
				DoAndReturn(func(_ context.Context, op bundler.Operation, _ bundler.FeeOracle) (common.Hash, error) {
					assert.Equal(t, bob.Address(), op.Account)
					require.Len(t, op.Calls, 1, "deployed account needs no factory call")
					assert.Equal(t, bob.Address(), op.Calls[0].To, "redemption runs on the redeemer's account")
					assert.True(t, bytes.HasPrefix(op.Calls[0].Data, delegation.RedeemDelegationsSelector))
					assert.Equal(t, want, op.Calls[0].Data)
					return opHash, nil
				})
			gomock.InOrder(
				relay.EXPECT().OperationReceipt(gomock.Any(), opHash).Return(nil, nil),
				relay.EXPECT().OperationReceipt(gomock.Any(), opHash).Return(&bundler.Receipt{
					OperationHash:   opHash,
					TransactionHash: txHash,
					Sender:          bob.Address(),
					Success:         true,
				}, nil),
			)

			s := bundler.NewSubmitter(relay, deployment{bob.Address(): true}, env, bundler.WithPollPolicy(fastPoll))
			h, err := s.Redeem(context.Background(), bob, chains, modes, transfer(), nil)
			require.NoError(t, err)
			assert.Equal(t, bundler.StateSubmitted, h.State())
			assert.Equal(t, opHash, h.Hash())
			assert.NotEmpty(t, h.ID)

			r, err := s.AwaitReceipt(context.Background(), h, 0)
			require.NoError(t, err)
			assert.True(t, r.Success)
			assert.Equal(t, txHash, r.TransactionHash)
			assert.Equal(t, bundler.StateConfirmed, h.State())

			again, err := s.AwaitReceipt(context.Background(), h, 0)
			require.NoError(t, err)
			assert.Same(t, r, again, "settled handles are not polled again")
		})
	}
}

func TestRedeemIdentityMismatch(t *testing.T) {
	env := environment(t)
	bob := hybridAccount(t, env, bobKey)
	mallory := common.HexToAddress("0x000000000000000000000000000000000000dead")
	chain := transferChain(t, env, mallory)

	relay := mocks.NewMockRelayForTest(t)
	checker := &countingChecker{}
	s := bundler.NewSubmitter(relay, checker, env)

	_, err := s.Redeem(context.Background(), bob, []delegation.Chain{chain},
		[]delegation.ExecutionMode{delegation.SingleDefaultMode}, transfer(), nil)
	require.ErrorIs(t, err, delegation.ErrIdentityMismatch)
	assert.Zero(t, checker.calls.Load(), "no network access before preflight passes")
}

func TestRedeemArityMismatch(t *testing.T) {
	env := environment(t)
	bob := hybridAccount(t, env, bobKey)
	chain := transferChain(t, env, bob.Address())
	s := bundler.NewSubmitter(mocks.NewMockRelayForTest(t), &countingChecker{}, env)

	_, err := s.Redeem(context.Background(), bob, []delegation.Chain{chain},
		[]delegation.ExecutionMode{delegation.SingleDefaultMode, delegation.BatchDefaultMode}, transfer(), nil)
	assert.ErrorIs(t, err, delegation.ErrArityMismatch)
}

func TestSubmitPrependsDeployment(t *testing.T) {
	env := environment(t)
	bob := hybridAccount(t, env, bobKey)
	factory, data, err := bob.FactoryCall()
	require.NoError(t, err)

	relay := mocks.NewMockRelayForTest(t)
	relay.EXPECT().
		SendOperation(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, op bundler.Operation, _ bundler.FeeOracle) (common.Hash, error) {
			require.Len(t, op.Calls, 2)
			assert.Equal(t, factory, op.Calls[0].To)
			assert.Equal(t, data, op.Calls[0].Data)
			assert.Equal(t, recipient, op.Calls[1].To)
			return common.HexToHash("0x01"), nil
		})

	s := bundler.NewSubmitter(relay, deployment{}, env)
	h, err := s.Submit(context.Background(), bob, []bundler.Call{{To: recipient}}, nil)
	require.NoError(t, err)
	assert.Len(t, h.Calls(), 2)
}

func TestSubmitRejections(t *testing.T) {
	env := environment(t)
	bob := hybridAccount(t, env, bobKey)

	tests := []struct {
		name     string
		relayErr error
		want     bundler.RejectionKind
	}{
		{"insufficient funds", &bundler.SubmissionError{Kind: bundler.RejectionInsufficientFunds, Reason: "AA21"}, bundler.RejectionInsufficientFunds},
		{"nonce conflict", &bundler.SubmissionError{Kind: bundler.RejectionNonceConflict, Reason: "AA25"}, bundler.RejectionNonceConflict},
		{"malformed", &bundler.SubmissionError{Kind: bundler.RejectionMalformed, Reason: "bad"}, bundler.RejectionMalformed},
		{"transport", errors.New("connection refused"), bundler.RejectionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := mocks.NewMockRelayForTest(t)
			relay.EXPECT().SendOperation(gomock.Any(), gomock.Any(), gomock.Any()).Return(common.Hash{}, tt.relayErr)

			s := bundler.NewSubmitter(relay, deployment{bob.Address(): true}, env)
			h, err := s.Submit(context.Background(), bob, []bundler.Call{{To: recipient}}, nil)
			require.ErrorIs(t, err, bundler.ErrSubmissionRejected)

			var subErr *bundler.SubmissionError
			require.ErrorAs(t, err, &subErr)
			if subErr.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", subErr.Kind, tt.want)
			}
			assert.Equal(t, h.ID, subErr.OperationID)
			assert.Equal(t, bundler.StateBuilt, h.State())
		})
	}

	t.Run("no calls", func(t *testing.T) {
		s := bundler.NewSubmitter(mocks.NewMockRelayForTest(t), deployment{}, env)
		_, err := s.Submit(context.Background(), bob, nil, nil)
		assert.ErrorIs(t, err, bundler.ErrSubmissionRejected)
	})
}

func submitted(t *testing.T, relay *mocks.MockRelay, env *delegation.Environment, hash common.Hash) (*bundler.Submitter, *bundler.OperationHandle) {
	t.Helper()
	bob := hybridAccount(t, env, bobKey)
	relay.EXPECT().SendOperation(gomock.Any(), gomock.Any(), gomock.Any()).Return(hash, nil)
	s := bundler.NewSubmitter(relay, deployment{bob.Address(): true}, env, bundler.WithPollPolicy(fastPoll))
	h, err := s.Submit(context.Background(), bob, []bundler.Call{{To: recipient}}, nil)
	require.NoError(t, err)
	return s, h
}

func TestAwaitReceiptTimeout(t *testing.T) {
	env := environment(t)
	relay := mocks.NewMockRelayForTest(t)
	hash := common.HexToHash("0x0123")
	s, h := submitted(t, relay, env, hash)

	relay.EXPECT().OperationReceipt(gomock.Any(), hash).
		DoAndReturn(func(ctx context.Context, _ common.Hash) (*bundler.Receipt, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()

	start := time.Now()
	_, err := s.AwaitReceipt(context.Background(), h, 50*time.Millisecond)
	require.ErrorIs(t, err, bundler.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	var opErr *bundler.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, hash, opErr.Hash)
	assert.Equal(t, bundler.StateTimedOut, opErr.State)
	assert.Equal(t, bundler.StateTimedOut, h.State())
}

func TestAwaitReceiptRevertedIsNotAnError(t *testing.T) {
	env := environment(t)
	relay := mocks.NewMockRelayForTest(t)
	hash := common.HexToHash("0x0456")
	s, h := submitted(t, relay, env, hash)

	relay.EXPECT().OperationReceipt(gomock.Any(), hash).Return(&bundler.Receipt{OperationHash: hash, Success: false, Reason: "reverted"}, nil)

	r, err := s.AwaitReceipt(context.Background(), h, time.Second)
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Equal(t, bundler.StateFailed, h.State())
}

func TestAwaitReceiptCancelled(t *testing.T) {
	env := environment(t)
	relay := mocks.NewMockRelayForTest(t)
	hash := common.HexToHash("0x0789")
	s, h := submitted(t, relay, env, hash)

	relay.EXPECT().OperationReceipt(gomock.Any(), hash).Return(nil, nil).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.AwaitReceipt(ctx, h, time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, bundler.ErrTimeout)
	assert.Equal(t, bundler.StateSubmitted, h.State(), "cancellation leaves the operation submitted")
}

func TestAwaitReceiptNotSubmitted(t *testing.T) {
	env := environment(t)
	bob := hybridAccount(t, env, bobKey)
	relay := mocks.NewMockRelayForTest(t)
	relay.EXPECT().SendOperation(gomock.Any(), gomock.Any(), gomock.Any()).Return(common.Hash{}, errors.New("down"))

	s := bundler.NewSubmitter(relay, deployment{bob.Address(): true}, env)
	h, err := s.Submit(context.Background(), bob, []bundler.Call{{To: recipient}}, nil)
	require.Error(t, err)

	_, err = s.AwaitReceipt(context.Background(), h, time.Second)
	assert.ErrorIs(t, err, bundler.ErrNotSubmitted)
}
