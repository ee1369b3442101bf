package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
	"github.com/beetslabs/stakingmgr/internal/lib/staking"
)

// serveAPI runs the HTTP API until ctx is cancelled.
func (d *Daemon) serveAPI(ctx context.Context) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	router.Route("/api", func(r chi.Router) {
		r.Get("/staking/recommendations", d.handleStakingRecommendations)
		r.Get("/unstake/recommendations", d.handleUnstakeRecommendations)
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	router.Get("/readyz", d.handleReadyz)
	router.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": misc.GetVersionInfo()})
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", d.operCfg.apiPort()),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	misc.Infof(d.logger, "advisor API listening on %s", srv.Addr)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		misc.Errorf(d.logger, "advisor API stopped: %v", err)
		return
	}
	d.logger.Info("advisor API shutdown complete")
}

func (d *Daemon) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if d.Snapshot() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no snapshot yet\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type stakingRecommendationsResponse struct {
	Summary         staking.AdviceSummary `json:"summary"`
	Recommendations struct {
		StakeMore    []staking.StakeRecommendation `json:"stakeMore"`
		AvoidStaking []staking.StakeRecommendation `json:"avoidStaking"`
	} `json:"recommendations"`
	Validators struct {
		OverDelegated  []staking.ValidatorView `json:"overDelegated"`
		UnderDelegated []staking.ValidatorView `json:"underDelegated"`
		Balanced       []staking.ValidatorView `json:"balanced"`
		NotAllowed     []staking.ValidatorView `json:"notAllowed"`
	} `json:"validators"`
}

// handleStakingRecommendations reports, in whole-token units, which
// validators should receive more stake and which to avoid.
func (d *Daemon) handleStakingRecommendations(w http.ResponseWriter, r *http.Request) {
	snap := d.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot not ready")
		return
	}
	advice := staking.BuildStakingAdvice(snap.allocations, snap.validatorMeta())

	var resp stakingRecommendationsResponse
	resp.Summary = advice.Summary
	resp.Recommendations.StakeMore = emptyIfNil(advice.StakeMore)
	resp.Recommendations.AvoidStaking = emptyIfNil(advice.AvoidStaking)
	resp.Validators.OverDelegated = emptyIfNil(advice.OverDelegated)
	resp.Validators.UnderDelegated = emptyIfNil(advice.UnderDelegated)
	resp.Validators.Balanced = emptyIfNil(advice.Balanced)
	resp.Validators.NotAllowed = emptyIfNil(advice.NotAllowed)
	writeJSON(w, http.StatusOK, resp)
}

type withdrawalLeg struct {
	ValidatorID      string `json:"validatorId"`
	WithdrawalAmount string `json:"withdrawalAmount"`
}

type unstakeRecommendationsResponse struct {
	Data []withdrawalLeg `json:"data"`
}

// handleUnstakeRecommendations plans a withdrawal.  Unlike the staking
// endpoint, amounts here are raw base units (wei) - that's the contract the
// unstake tooling already depends on.
func (d *Daemon) handleUnstakeRecommendations(w http.ResponseWriter, r *http.Request) {
	snap := d.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot not ready")
		return
	}
	amountStr := r.URL.Query().Get("amount")
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("amount must be a positive wei integer, got %q", amountStr))
		return
	}

	plan, err := staking.PlanWithdrawal(d.logger, amount, snap.allocations, d.operCfg.StakingConfig())
	if err != nil {
		var unsat *staking.UnsatisfiableError
		if errors.As(err, &unsat) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":     unsat.Error(),
				"requested": unsat.Requested.String(),
				"missing":   unsat.Missing.String(),
			})
			return
		}
		misc.Errorf(d.logger, "withdrawal planning failed: %v", err)
		writeError(w, http.StatusInternalServerError, "withdrawal planning failed")
		return
	}

	resp := unstakeRecommendationsResponse{Data: make([]withdrawalLeg, 0, len(plan))}
	for _, leg := range plan {
		resp.Data = append(resp.Data, withdrawalLeg{
			ValidatorID:      leg.ValidatorID,
			WithdrawalAmount: leg.Amount.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
