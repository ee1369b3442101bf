// Package subgraph fetches the current delegation snapshot from the staking
// subgraph.  The snapshot's validator set is authoritative - it defines the
// universe the allocation engine works over - and row order is preserved
// because it is the planner's stable tie-break key.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ssgreg/repeat"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
	"github.com/beetslabs/stakingmgr/internal/lib/staking"
)

const stakersQuery = `{
  stakers(first: 1000, orderBy: id) {
    id
    stake
    isActive
  }
}`

type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	url        string
}

func NewClient(logger *slog.Logger, url string) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("no subgraph URL configured")
	}
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
	}, nil
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type stakersResponse struct {
	Data struct {
		Stakers []struct {
			ID       string `json:"id"`
			Stake    string `json:"stake"`
			IsActive bool   `json:"isActive"`
		} `json:"stakers"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Staker is one validator's delegation state as reported by the subgraph.
type Staker struct {
	ValidatorID string
	Stake       *big.Int
	IsActive    bool
}

// GetStakers fetches the full delegation snapshot.
func (c *Client) GetStakers(ctx context.Context) ([]Staker, error) {
	body, err := json.Marshal(graphQLRequest{Query: stakersQuery})
	if err != nil {
		return nil, err
	}

	var parsed stakersResponse
	err = repeat.Repeat(
		repeat.Fn(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			if resp.StatusCode != http.StatusOK {
				return repeat.HintTemporary(fmt.Errorf("subgraph returned %s", resp.Status))
			}
			parsed = stakersResponse{}
			if err := json.Unmarshal(data, &parsed); err != nil {
				return repeat.HintTemporary(fmt.Errorf("bad subgraph response: %w", err))
			}
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(5),
		repeat.FnOnError(func(err error) error {
			misc.Infof(c.logger, "retrying stakers query, error:%s", err.Error())
			return err
		}),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			repeat.ExponentialBackoff(1*time.Second).Set(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("stakers query failed: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("stakers query rejected: %s", parsed.Errors[0].Message)
	}

	stakers := make([]Staker, 0, len(parsed.Data.Stakers))
	for _, row := range parsed.Data.Stakers {
		stake, ok := new(big.Int).SetString(row.Stake, 10)
		if !ok {
			return nil, fmt.Errorf("staker %s has non-numeric stake %q", row.ID, row.Stake)
		}
		if stake.Sign() < 0 {
			return nil, fmt.Errorf("staker %s has negative stake %s", row.ID, row.Stake)
		}
		stakers = append(stakers, Staker{
			ValidatorID: row.ID,
			Stake:       stake,
			IsActive:    row.IsActive,
		})
	}
	misc.Debugf(c.logger, "fetched delegation snapshot, validators:%d", len(stakers))
	return stakers, nil
}

// Delegations converts a snapshot to the engine's input form, preserving
// snapshot order.
func Delegations(stakers []Staker) []staking.Delegation {
	delegations := make([]staking.Delegation, len(stakers))
	for i, s := range stakers {
		delegations[i] = staking.Delegation{ValidatorID: s.ValidatorID, Amount: s.Stake}
	}
	return delegations
}
