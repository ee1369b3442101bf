// Package sonic is a minimal JSON-RPC client for the Sonic chain - just the
// handful of read-only calls the advisor needs (token balances, stS rate,
// SFC validator state).  No transaction submission, no signing.
package sonic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mailgun/holster/v4/syncutil"
	"github.com/shopspring/decimal"
	"github.com/ssgreg/repeat"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
)

// 4-byte call selectors for everything we read.
const (
	selBalanceOf         = "0x70a08231" // balanceOf(address)
	selGetRate           = "0x679aefce" // getRate()
	selGetValidator      = "0xb5d89627" // getValidator(uint256)
	selGetSelfStake      = "0x5601fe01" // getSelfStake(uint256)
	selMaxDelegatedRatio = "0x2265f84f" // maxDelegatedRatio()
)

// validator status of 0 in the SFC means no deactivation bits are set
const statusActive = 0

type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	cfg        NetworkConfig
	nextID     atomic.Uint64

	// fetched once, the ratio is effectively a chain constant
	ratioOnce sync.Once
	ratio     *big.Int
	ratioErr  error
}

// NewClient connects to the configured RPC endpoint and verifies connectivity
// before returning.
func NewClient(logger *slog.Logger, cfg NetworkConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}
	// Override the default transport so we properly support multiple parallel
	// connections to the same host (and allow connection reuse)
	customTransport := http.DefaultTransport.(*http.Transport).Clone()
	customTransport.MaxIdleConns = 100
	customTransport.MaxConnsPerHost = 100
	customTransport.MaxIdleConnsPerHost = 100

	c := &Client{
		logger: logger,
		httpClient: &http.Client{
			Transport: customTransport,
			Timeout:   30 * time.Second,
		},
		cfg: cfg,
	}
	misc.Infof(logger, "Connecting to Sonic RPC at:%s", cfg.RPCURL)
	chainID, err := c.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to reach RPC node at %s: %w", cfg.RPCURL, err)
	}
	misc.Infof(logger, "connected, chain id:%d", chainID)
	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	// transient transport/server errors get retried, rpc-level errors don't -
	// the node understood us and said no
	err = repeat.Repeat(
		repeat.Fn(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			for key, value := range c.cfg.RPCHeaders {
				req.Header.Set(key, value)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			if resp.StatusCode >= 500 {
				return repeat.HintTemporary(fmt.Errorf("rpc node returned %s", resp.Status))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("rpc node returned %s: %s", resp.Status, data)
			}
			var rpcResp rpcResponse
			if err := json.Unmarshal(data, &rpcResp); err != nil {
				return repeat.HintTemporary(fmt.Errorf("bad rpc response: %w", err))
			}
			if rpcResp.Error != nil {
				return rpcResp.Error
			}
			result = rpcResp.Result
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(5),
		repeat.FnOnError(func(err error) error {
			misc.Debugf(c.logger, "retrying rpc call %s, error:%s", method, err.Error())
			return err
		}),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			repeat.ExponentialBackoff(500*time.Millisecond).Set(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc %s failed: %w", method, err)
	}
	return result, nil
}

// ethCall performs a read-only contract call and returns the raw return data
// (hex string).
func (c *Client) ethCall(ctx context.Context, to string, data string) (string, error) {
	result, err := c.call(ctx, "eth_call", map[string]string{"to": to, "data": data}, "latest")
	if err != nil {
		return "", err
	}
	var hexResult string
	if err := json.Unmarshal(result, &hexResult); err != nil {
		return "", fmt.Errorf("bad eth_call result: %w", err)
	}
	return hexResult, nil
}

// ChainID fetches the chain id, doubling as a connectivity check.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	var hexID string
	if err := json.Unmarshal(result, &hexID); err != nil {
		return 0, fmt.Errorf("bad eth_chainId result: %w", err)
	}
	id, ok := new(big.Int).SetString(strings.TrimPrefix(hexID, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("bad chain id %q", hexID)
	}
	return id.Uint64(), nil
}

// TokenBalance returns the ERC-20 balance (wei) of wallet for token.
func (c *Client) TokenBalance(ctx context.Context, token, wallet string) (*big.Int, error) {
	result, err := c.ethCall(ctx, token, selBalanceOf+padAddress(wallet))
	if err != nil {
		return nil, err
	}
	return word(result, 0)
}

// STSRate returns the current stS -> S conversion rate from the stS rate
// provider (a 1e18-scaled value on chain).
func (c *Client) STSRate(ctx context.Context) (decimal.Decimal, error) {
	result, err := c.ethCall(ctx, c.cfg.STSAddress, selGetRate)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := word(result, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(rate, -18), nil
}

// Validator is the SFC view of a single validator.
type Validator struct {
	ID            string
	Status        uint64
	IsActive      bool
	ReceivedStake *big.Int
	SelfStake     *big.Int
	// MaxDelegated is the delegation ceiling: selfStake * maxDelegatedRatio.
	MaxDelegated *big.Int
}

// GetValidator reads one validator's SFC state.
func (c *Client) GetValidator(ctx context.Context, validatorID string) (Validator, error) {
	id, ok := new(big.Int).SetString(validatorID, 10)
	if !ok {
		return Validator{}, fmt.Errorf("validator id %q is not numeric", validatorID)
	}
	arg := fmt.Sprintf("%064x", id)

	result, err := c.ethCall(ctx, c.cfg.SFCAddress, selGetValidator+arg)
	if err != nil {
		return Validator{}, fmt.Errorf("getValidator(%s) failed: %w", validatorID, err)
	}
	// struct Validator { status, deactivatedTime, deactivatedEpoch,
	//                    receivedStake, createdEpoch, createdTime, auth }
	status, err := word(result, 0)
	if err != nil {
		return Validator{}, err
	}
	receivedStake, err := word(result, 3)
	if err != nil {
		return Validator{}, err
	}

	selfStakeResult, err := c.ethCall(ctx, c.cfg.SFCAddress, selGetSelfStake+arg)
	if err != nil {
		return Validator{}, fmt.Errorf("getSelfStake(%s) failed: %w", validatorID, err)
	}
	selfStake, err := word(selfStakeResult, 0)
	if err != nil {
		return Validator{}, err
	}
	ratio, err := c.maxDelegatedRatio(ctx)
	if err != nil {
		return Validator{}, err
	}
	maxDelegated := new(big.Int).Mul(selfStake, ratio)
	maxDelegated.Quo(maxDelegated, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	return Validator{
		ID:            validatorID,
		Status:        status.Uint64(),
		IsActive:      status.Uint64() == statusActive,
		ReceivedStake: receivedStake,
		SelfStake:     selfStake,
		MaxDelegated:  maxDelegated,
	}, nil
}

// GetValidators fetches SFC state for all given validators in parallel.
func (c *Client) GetValidators(ctx context.Context, validatorIDs []string) (map[string]Validator, error) {
	var (
		fanOut     = syncutil.NewFanOut(10)
		mapLock    sync.Mutex
		validators = map[string]Validator{}
	)
	for _, validatorID := range validatorIDs {
		fanOut.Run(func(val any) error {
			id := val.(string)
			validator, err := c.GetValidator(ctx, id)
			if err != nil {
				return err
			}
			mapLock.Lock()
			validators[id] = validator
			mapLock.Unlock()
			return nil
		}, validatorID)
	}
	if errs := fanOut.Wait(); len(errs) > 0 {
		return nil, fmt.Errorf("error fetching validator state: %w", errs[0])
	}
	return validators, nil
}

// maxDelegatedRatio reads the SFC delegation ratio constant (1e18 scaled),
// caching it for the life of the client.
func (c *Client) maxDelegatedRatio(ctx context.Context) (*big.Int, error) {
	c.ratioOnce.Do(func() {
		result, err := c.ethCall(ctx, c.cfg.SFCAddress, selMaxDelegatedRatio)
		if err != nil {
			c.ratioErr = fmt.Errorf("maxDelegatedRatio() failed: %w", err)
			return
		}
		c.ratio, c.ratioErr = word(result, 0)
	})
	return c.ratio, c.ratioErr
}

// padAddress encodes an address as a 32-byte call argument.
func padAddress(addr string) string {
	addr = strings.ToLower(strings.TrimPrefix(addr, "0x"))
	return strings.Repeat("0", 64-len(addr)) + addr
}

// word extracts the i-th 32-byte word of eth_call return data as an unsigned
// integer.
func word(result string, i int) (*big.Int, error) {
	hexData := strings.TrimPrefix(result, "0x")
	if len(hexData) < (i+1)*64 {
		return nil, fmt.Errorf("call returned %d hex chars, need word %d", len(hexData), i)
	}
	value, ok := new(big.Int).SetString(hexData[i*64:(i+1)*64], 16)
	if !ok {
		return nil, fmt.Errorf("bad word %d in call result", i)
	}
	return value, nil
}
