package sonic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// fakeNode answers eth_chainId and dispatches eth_call by selector.
type fakeNode struct {
	calls   func(to, data string) (string, error)
	chainID string
}

func (f *fakeNode) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeResult := func(result any) {
			_ = json.NewEncoder(w).Encode(map[string]any{"id": req.ID, "jsonrpc": "2.0", "result": result})
		}
		switch req.Method {
		case "eth_chainId":
			writeResult(f.chainID)
		case "eth_call":
			var callObj struct {
				To   string `json:"to"`
				Data string `json:"data"`
			}
			_ = json.Unmarshal(req.Params[0], &callObj)
			result, err := f.calls(callObj.To, callObj.Data)
			if err != nil {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id": req.ID, "jsonrpc": "2.0",
					"error": map[string]any{"code": -32000, "message": err.Error()},
				})
				return
			}
			writeResult(result)
		default:
			http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
		}
	}
}

func hexWord(value *big.Int) string {
	return fmt.Sprintf("%064x", value)
}

func weiTokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	if node.chainID == "" {
		node.chainID = "0x92" // sonic mainnet
	}
	server := httptest.NewServer(node.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(testLogger(), NetworkConfig{
		RPCURL:     server.URL,
		SFCAddress: "0xFC00FACE00000000000000000000000000000000",
		STSAddress: "0xE5DA20F15420aD15DE0fa650600aFc998bbE3955",
	})
	require.NoError(t, err)
	return client
}

func TestClientChainID(t *testing.T) {
	client := newTestClient(t, &fakeNode{chainID: "0x92"})
	id, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(146), id)
}

func TestClientTokenBalance(t *testing.T) {
	const wallet = "0x0123456789abcdef0123456789abcdef01234567"
	node := &fakeNode{
		calls: func(to, data string) (string, error) {
			require.True(t, strings.HasPrefix(data, selBalanceOf))
			assert.Equal(t, padAddress(wallet), strings.TrimPrefix(data, selBalanceOf))
			return "0x" + hexWord(weiTokens(1234)), nil
		},
	}
	client := newTestClient(t, node)

	bal, err := client.TokenBalance(context.Background(), "0xtoken", wallet)
	require.NoError(t, err)
	assert.Equal(t, weiTokens(1234), bal)
}

func TestClientSTSRate(t *testing.T) {
	node := &fakeNode{
		calls: func(to, data string) (string, error) {
			require.Equal(t, selGetRate, data)
			// 1.05 scaled by 1e18
			rate, _ := new(big.Int).SetString("1050000000000000000", 10)
			return "0x" + hexWord(rate), nil
		},
	}
	client := newTestClient(t, node)

	rate, err := client.STSRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.05", rate.String())
}

func TestClientGetValidator(t *testing.T) {
	var ratioCalls atomic.Int32
	node := &fakeNode{
		calls: func(to, data string) (string, error) {
			switch {
			case strings.HasPrefix(data, selGetValidator):
				// status=0, deactivatedTime, deactivatedEpoch, receivedStake,
				// createdEpoch, createdTime, auth
				words := []string{
					hexWord(big.NewInt(0)),
					hexWord(big.NewInt(0)),
					hexWord(big.NewInt(0)),
					hexWord(weiTokens(5000)),
					hexWord(big.NewInt(12)),
					hexWord(big.NewInt(1700000000)),
					hexWord(big.NewInt(0)),
				}
				return "0x" + strings.Join(words, ""), nil
			case strings.HasPrefix(data, selGetSelfStake):
				return "0x" + hexWord(weiTokens(500)), nil
			case data == selMaxDelegatedRatio:
				ratioCalls.Add(1)
				// ratio of 16, 1e18 scaled
				return "0x" + hexWord(weiTokens(16)), nil
			}
			return "", fmt.Errorf("unexpected call data %s", data)
		},
	}
	client := newTestClient(t, node)

	validator, err := client.GetValidator(context.Background(), "14")
	require.NoError(t, err)
	assert.Equal(t, "14", validator.ID)
	assert.True(t, validator.IsActive)
	assert.Equal(t, weiTokens(5000), validator.ReceivedStake)
	assert.Equal(t, weiTokens(500), validator.SelfStake)
	assert.Equal(t, weiTokens(8000), validator.MaxDelegated, "selfStake * ratio")

	// the ratio is cached across lookups
	_, err = client.GetValidator(context.Background(), "15")
	require.NoError(t, err)
	assert.Equal(t, int32(1), ratioCalls.Load())
}

func TestClientGetValidatorInactive(t *testing.T) {
	node := &fakeNode{
		calls: func(to, data string) (string, error) {
			switch {
			case strings.HasPrefix(data, selGetValidator):
				words := []string{
					hexWord(big.NewInt(1)), // WITHDRAWN_BIT set
					hexWord(big.NewInt(0)),
					hexWord(big.NewInt(0)),
					hexWord(big.NewInt(0)),
				}
				return "0x" + strings.Join(words, ""), nil
			case strings.HasPrefix(data, selGetSelfStake):
				return "0x" + hexWord(big.NewInt(0)), nil
			case data == selMaxDelegatedRatio:
				return "0x" + hexWord(weiTokens(16)), nil
			}
			return "", fmt.Errorf("unexpected call data %s", data)
		},
	}
	client := newTestClient(t, node)

	validator, err := client.GetValidator(context.Background(), "3")
	require.NoError(t, err)
	assert.False(t, validator.IsActive)
}

func TestClientRPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	node := &fakeNode{
		calls: func(to, data string) (string, error) {
			calls.Add(1)
			return "", fmt.Errorf("execution reverted")
		},
	}
	client := newTestClient(t, node)

	_, err := client.TokenBalance(context.Background(), "0xtoken", "0xwallet")
	require.Error(t, err)
	assert.ErrorContains(t, err, "execution reverted")
	assert.Equal(t, int32(1), calls.Load(), "node-level rpc errors must not retry")
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	var node fakeNode
	node.chainID = "0x92"
	inner := node.handler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// fail the first two attempts of every call
		if hits.Add(1)%3 != 0 {
			http.Error(w, "upstream timeout", http.StatusBadGateway)
			return
		}
		inner(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(testLogger(), NetworkConfig{RPCURL: server.URL})
	require.NoError(t, err)

	id, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(146), id)
}

func TestPadAddress(t *testing.T) {
	assert.Equal(t,
		"000000000000000000000000fc00face00000000000000000000000000000000",
		padAddress("0xFC00FACE00000000000000000000000000000000"))
}

func TestWord(t *testing.T) {
	data := "0x" + hexWord(big.NewInt(7)) + hexWord(big.NewInt(9))

	first, err := word(data, 0)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), first)

	second, err := word(data, 1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(9), second)

	_, err = word(data, 2)
	assert.Error(t, err)
}
