package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/txn"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.cfg.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.log.Warn("server: readiness check failed", "failed", failed)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, VersionResponse{Version: s.cfg.Version, Commit: s.cfg.Commit, Date: s.cfg.Date})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Status())
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	account, err := urlAddress(r, "balances", "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Balances(account))
}

func (s *Server) handleReferral(w http.ResponseWriter, r *http.Request) {
	const op = "getReferralAddress"
	advertiser, err := urlAddress(r, op, "advertiser")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	channel, ok := s.cfg.Service.ReferralAddress(advertiser)
	if !ok {
		s.writeError(w, r, saleerr.NotFoundf(op, "no active referral for %s", advertiser))
		return
	}
	s.writeJSON(w, http.StatusOK, ReferralResponse{Advertiser: advertiser, Channel: channel})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Channels())
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	const op = "getChannel"
	addr, err := urlAddress(r, op, "channel")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, ok := s.cfg.Service.Channel(addr)
	if !ok {
		s.writeError(w, r, saleerr.NotFoundf(op, "no channel at %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, ChannelResponse{
		ChannelInfo: info,
		Valid:       s.cfg.Service.IsValidReferralAddress(addr),
	})
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Grants())
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	const op = "getGrant"
	addr, err := urlAddress(r, op, "grant")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	grant, ok := s.cfg.Service.Grant(addr)
	if !ok {
		s.writeError(w, r, saleerr.NotFoundf(op, "no grant at %s", addr))
		return
	}
	s.writeJSON(w, http.StatusOK, grant)
}

// handleEvents pages through committed signals. The in-memory log answers
// when it still holds the page; older pages come from the store.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	const op = "events"
	after, err := queryUint(r, "after", 0)
	if err != nil {
		s.writeError(w, r, saleerr.Validationf(op, "invalid after: %v", err))
		return
	}
	limit, err := queryUint(r, "limit", defaultEventsLimit)
	if err != nil || limit == 0 {
		s.writeError(w, r, saleerr.Validationf(op, "invalid limit"))
		return
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	signals := s.cfg.Events.Since(after, int(limit))
	if s.cfg.Store != nil && (len(signals) == 0 || signals[0].Seq > after+1) {
		stored, err := s.cfg.Store.Since(r.Context(), after, int(limit))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(stored) > 0 {
			signals = stored
		}
	}

	next := after
	if n := len(signals); n > 0 {
		next = signals[n-1].Seq
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Signals: signals, Next: next})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Activity == nil {
		s.writeError(w, r, saleerr.NotFoundf("activity", "activity analytics are not configured"))
		return
	}
	totals, err := s.cfg.Activity.Totals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	const op = "buyTokens"
	sender, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req PurchaseRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	call := txn.Call{Sender: sender, Value: req.Value}
	if req.Channel != nil {
		err = s.cfg.Service.BuyTokensVia(r.Context(), *req.Channel, call, req.Beneficiary)
	} else {
		err = s.cfg.Service.BuyTokens(r.Context(), call, req.Beneficiary)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Balances(req.Beneficiary))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	const op = "transfer"
	sender, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req TransferRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Service.Transfer(r.Context(), txn.Call{Sender: sender, Value: req.Value}, req.To); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Balances(sender))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	const op = "claimRefund"
	who, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.cfg.Service.ClaimRefund(r.Context(), who)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	const op = "release"
	grant, err := urlAddress(r, op, "grant")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.cfg.Service.ReleaseTimeLock(r.Context(), grant)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

