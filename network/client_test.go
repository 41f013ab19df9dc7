package network

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type handlerFunc func(params []json.RawMessage) (interface{}, error)

// newNode serves a minimal JSON-RPC node backed by handlers.
func newNode(t *testing.T, handlers map[string]handlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		h, ok := handlers[req.Method]
		if !ok {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found: " + req.Method}
		} else if result, err := h(req.Params); err != nil {
			resp["error"] = map[string]interface{}{"code": -32000, "message": err.Error()}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	rc, err := rpc.DialContext(context.Background(), srv.URL)
	require.NoError(t, err)
	c := NewClient(rc, nil)
	t.Cleanup(c.Close)
	return c
}

func constant(v interface{}) handlerFunc {
	return func([]json.RawMessage) (interface{}, error) { return v, nil }
}

func latestHeader(baseFee int64) map[string]interface{} {
	zero32 := common.Hash{}.Hex()
	return map[string]interface{}{
		"parentHash":       zero32,
		"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
		"miner":            common.Address{}.Hex(),
		"stateRoot":        zero32,
		"transactionsRoot": zero32,
		"receiptsRoot":     zero32,
		"logsBloom":        "0x" + strings.Repeat("00", 256),
		"difficulty":       "0x0",
		"number":           "0x10",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"timestamp":        "0x6553f100",
		"extraData":        "0x",
		"mixHash":          zero32,
		"nonce":            "0x0000000000000000",
		"baseFeePerGas":    hexutil.EncodeBig(big.NewInt(baseFee)),
	}
}

func TestProbe(t *testing.T) {
	c := newNode(t, map[string]handlerFunc{
		"eth_blockNumber": constant("0x1b4"),
		"eth_chainId":     constant("0xaa36a7"),
	})

	res, err := c.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(436), res.BlockNumber)
	assert.Equal(t, int64(11155111), res.ChainID.Int64())
}

func TestProbeUnreachable(t *testing.T) {
	c := newNode(t, map[string]handlerFunc{
		"eth_blockNumber": func([]json.RawMessage) (interface{}, error) { return nil, errors.New("syncing") },
	})
	_, err := c.Probe(context.Background())
	assert.ErrorIs(t, err, ErrNodeUnreachable)
}

func TestIsDeployed(t *testing.T) {
	contract := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	delegated := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	target := common.HexToAddress("0x000000000000000000000000000000000000aaaa")

	c := newNode(t, map[string]handlerFunc{
		"eth_getCode": func(params []json.RawMessage) (interface{}, error) {
			var addr common.Address
			if err := json.Unmarshal(params[0], &addr); err != nil {
				return nil, err
			}
			switch addr {
			case contract:
				return "0x6080604052", nil
			case delegated:
				return hexutil.Encode(designatorFor(target)), nil
			default:
				return "0x", nil
			}
		},
	})

	testCases := []struct {
		name string
		addr common.Address
		want bool
	}{
		{"contract", contract, true},
		{"designator", delegated, true},
		{"empty", common.HexToAddress("0x01"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.IsDeployed(context.Background(), tc.addr)
			require.NoError(t, err)
			if got != tc.want {
				t.Errorf("IsDeployed() = %v, want %v", got, tc.want)
			}
		})
	}

	got, ok, err := c.Designator(context.Background(), delegated)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, target, got)

	_, ok, err = c.Designator(context.Background(), contract)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuggestFees(t *testing.T) {
	c := newNode(t, map[string]handlerFunc{
		"eth_getBlockByNumber":     constant(latestHeader(7_000_000_000)),
		"eth_maxPriorityFeePerGas": constant("0x3b9aca00"),
	})

	baseFee, tip, err := c.SuggestFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7_000_000_000), baseFee.Int64())
	assert.Equal(t, int64(1_000_000_000), tip.Int64())
}

func TestEntryPointNonce(t *testing.T) {
	entryPoint := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	sender := common.HexToAddress("0x00000000000000000000000000000000000c0ffe")

	c := newNode(t, map[string]handlerFunc{
		"eth_call": func(params []json.RawMessage) (interface{}, error) {
			var call struct {
				To    common.Address `json:"to"`
				Input hexutil.Bytes  `json:"input"`
				Data  hexutil.Bytes  `json:"data"`
			}
			if err := json.Unmarshal(params[0], &call); err != nil {
				return nil, err
			}
			data := call.Input
			if len(data) == 0 {
				data = call.Data
			}
			if call.To != entryPoint || len(data) != 4+64 {
				return nil, errors.New("unexpected call")
			}
			if common.BytesToAddress(data[4:36]) != sender {
				return nil, errors.New("unexpected sender")
			}
			return hexutil.Encode(common.LeftPadBytes([]byte{0x05}, 32)), nil
		},
	})

	nonce, err := c.EntryPointNonce(context.Background(), entryPoint, sender, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), nonce.Int64())
}

type listerFunc func(context.Context) ([]common.Address, error)

func (f listerFunc) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	return f(ctx)
}

func TestProbeBundler(t *testing.T) {
	ep := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	other := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

	_, err := ProbeBundler(context.Background(), listerFunc(func(context.Context) ([]common.Address, error) {
		return []common.Address{other, ep}, nil
	}), ep)
	assert.NoError(t, err)

	_, err = ProbeBundler(context.Background(), listerFunc(func(context.Context) ([]common.Address, error) {
		return []common.Address{other}, nil
	}), ep)
	assert.ErrorIs(t, err, ErrEntryPointUnsupported)

	_, err = ProbeBundler(context.Background(), listerFunc(func(context.Context) ([]common.Address, error) {
		return nil, errors.New("connection refused")
	}), ep)
	assert.Error(t, err)
}
