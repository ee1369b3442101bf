package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ssgreg/repeat"

	"github.com/beetslabs/stakingmgr/internal/lib/boost"
	"github.com/beetslabs/stakingmgr/internal/lib/misc"
	"github.com/beetslabs/stakingmgr/internal/lib/sonic"
	"github.com/beetslabs/stakingmgr/internal/lib/staking"
	"github.com/beetslabs/stakingmgr/internal/lib/subgraph"
)

// how often the boost tracker recomputes wallet balances
const boostRefreshInterval = 6 * time.Hour

// Daemon serves delegation advice over HTTP off a periodically refreshed
// snapshot of delegation, boost, and validator state.  Each refresh swaps in
// a complete new snapshot; requests only ever read a consistent one.
type Daemon struct {
	logger      *slog.Logger
	sonicClient *sonic.Client
	graphClient *subgraph.Client
	operCfg     *OperatorConfig
	tracker     *boost.Tracker

	// embed mutex for locking state for members below the mutex
	sync.RWMutex
	snap *snapshot
}

// snapshot is one consistent view of everything the advisor needs.
type snapshot struct {
	fetchedAt   time.Time
	allocations *staking.AllocationSet
	boosts      []staking.BoostRecord
	validators  map[string]sonic.Validator
}

func newDaemon(operCfg *OperatorConfig) *Daemon {
	d := &Daemon{
		logger:      App.logger,
		sonicClient: App.sonicClient,
		graphClient: App.graphClient,
		operCfg:     operCfg,
	}
	if len(operCfg.Wallets) > 0 {
		d.tracker = boost.NewTracker(App.logger, App.sonicClient,
			App.netCfg.STSAddress, App.netCfg.STokenAddress, operCfg.Wallets)
	}
	return d
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup) error {
	d.logger.Info("Starting stakingmgr daemon")

	// Make sure we have boost weights before the first snapshot - run the
	// tracker once if the CSV isn't usable yet.
	if _, err := boost.LoadRecords(d.logger, d.operCfg.boostCSVPath()); err != nil {
		if d.tracker == nil {
			return fmt.Errorf("boost weights unavailable and no wallets configured to compute them: %w", err)
		}
		misc.Infof(d.logger, "boost weights unavailable (%v), running initial tracker pass", err)
		if err := d.tracker.Refresh(ctx, d.operCfg.boostCSVPath()); err != nil {
			return err
		}
	}
	if err := d.refreshSnapshot(ctx); err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.SnapshotWatcher(ctx)
	}()

	if d.tracker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.BoostWatcher(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.serveAPI(ctx)
	}()
	return nil
}

// SnapshotWatcher keeps the advisor's snapshot fresh.  A failed refresh keeps
// serving the previous snapshot and tries again next tick.
func (d *Daemon) SnapshotWatcher(ctx context.Context) {
	defer d.logger.Info("Exiting SnapshotWatcher")
	d.logger.Info("Starting SnapshotWatcher")

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.operCfg.refreshInterval()):
			if err := d.refreshSnapshot(ctx); err != nil {
				misc.Warnf(d.logger, "snapshot refresh failed, serving stale data: %v", err)
			}
		}
	}
}

// BoostWatcher periodically recomputes boost weights from wallet balances.
func (d *Daemon) BoostWatcher(ctx context.Context) {
	defer d.logger.Info("Exiting BoostWatcher")
	d.logger.Info("Starting BoostWatcher")

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(boostRefreshInterval):
			if err := d.tracker.Refresh(ctx, d.operCfg.boostCSVPath()); err != nil {
				misc.Warnf(d.logger, "boost weight refresh failed: %v", err)
				break
			}
			// fold the fresh weights into the serving snapshot right away
			if err := d.refreshSnapshot(ctx); err != nil {
				misc.Warnf(d.logger, "snapshot refresh after boost update failed: %v", err)
			}
		}
	}
}

// refreshSnapshot pulls delegation, boost, and validator state and swaps in a
// new serving snapshot.
func (d *Daemon) refreshSnapshot(ctx context.Context) error {
	var snap *snapshot
	err := repeat.Repeat(
		repeat.Fn(func() error {
			var err error
			snap, err = d.buildSnapshot(ctx)
			if err != nil {
				// input-data errors won't fix themselves by retrying
				if errors.Is(err, staking.ErrNoDelegations) ||
					errors.Is(err, staking.ErrNoBoostData) ||
					errors.Is(err, staking.ErrNoAllowedValidators) {
					return err
				}
				return repeat.HintTemporary(err)
			}
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(5),
		repeat.FnOnError(func(err error) error {
			misc.Warnf(d.logger, "retrying snapshot build, error:%v", err)
			return err
		}),
		repeat.WithDelay(
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 5 * time.Second,
				MaxDelay:  30 * time.Second,
			}).Set(),
		),
	)
	if err != nil {
		return err
	}

	d.Lock()
	d.snap = snap
	d.Unlock()

	snap.allocations.UpdateMetrics()
	misc.Infof(d.logger, "snapshot refreshed, validators:%d, total delegated:%s S",
		len(snap.allocations.Allocations), staking.TokensFromWei(snap.allocations.TotalDelegated).Round(2))
	return nil
}

func (d *Daemon) buildSnapshot(ctx context.Context) (*snapshot, error) {
	stakers, err := d.graphClient.GetStakers(ctx)
	if err != nil {
		return nil, err
	}
	boosts, err := boost.LoadRecords(d.logger, d.operCfg.boostCSVPath())
	if err != nil {
		return nil, err
	}
	allocations, err := staking.ComputeAllocations(d.logger, boosts, subgraph.Delegations(stakers), d.operCfg.StakingConfig())
	if err != nil {
		return nil, err
	}
	validators, err := d.sonicClient.GetValidators(ctx, d.operCfg.AllowedValidators)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		fetchedAt:   time.Now(),
		allocations: allocations,
		boosts:      boosts,
		validators:  validators,
	}, nil
}

// Snapshot returns the current serving snapshot, or nil before the first
// successful refresh.
func (d *Daemon) Snapshot() *snapshot {
	d.RLock()
	defer d.RUnlock()
	return d.snap
}

// validatorMeta converts the chain view to the advisor's input form.
func (s *snapshot) validatorMeta() map[string]staking.ValidatorMeta {
	meta := make(map[string]staking.ValidatorMeta, len(s.validators))
	for id, v := range s.validators {
		meta[id] = staking.ValidatorMeta{
			IsActive:     v.IsActive,
			MaxDelegated: v.MaxDelegated,
		}
	}
	return meta
}
