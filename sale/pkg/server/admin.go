package server

import (
	"net/http"

	"github.com/malbeclabs/stagesale/sale/pkg/campaign"
)

func (s *Server) handleStartStage(w http.ResponseWriter, r *http.Request) {
	const op = "startStage"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req StageRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.cfg.Service.StartStage(r.Context(), admin, campaign.StageParams{
		OpeningTime: req.OpeningTime,
		ClosingTime: req.ClosingTime,
		Rate:        req.Rate,
		Limit:       req.Limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.cfg.Service.Status().Stage)
}

func (s *Server) handleStopStage(w http.ResponseWriter, r *http.Request) {
	const op = "stopStage"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Service.StopStage(r.Context(), admin); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	const op = "mintTokens"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req MintRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Service.MintTokens(r.Context(), admin, req.To, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Balances(req.To))
}

func (s *Server) handleTimelockMint(w http.ResponseWriter, r *http.Request) {
	const op = "mintTokensToTimelock"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req TimelockMintRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	grant, err := s.cfg.Service.MintTokensToTimelock(r.Context(), admin, req.To, req.Amount, req.ReleaseTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, GrantResponse{Grant: grant})
}

func (s *Server) handleCreateReferral(w http.ResponseWriter, r *http.Request) {
	const op = "createReferral"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ReferralRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	channel, err := s.cfg.Service.CreateReferral(r.Context(), admin, req.Advertiser, req.BonusPercent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ReferralResponse{Advertiser: req.Advertiser, Channel: channel})
}

func (s *Server) handleRemoveReferral(w http.ResponseWriter, r *http.Request) {
	const op = "removeReferral"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	advertiser, err := urlAddress(r, op, "advertiser")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Service.RemoveReferral(r.Context(), admin, advertiser); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	const op = "removeReferralByChannel"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	channel, err := urlAddress(r, op, "channel")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Service.RemoveReferralByChannel(r.Context(), admin, channel); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClaimVault(w http.ResponseWriter, r *http.Request) {
	const op = "claimVault"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.cfg.Service.ClaimVault(r.Context(), admin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	const op = "finalize"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Service.Finalize(r.Context(), admin); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Status())
}

func (s *Server) handleOwnership(w http.ResponseWriter, r *http.Request) {
	const op = "transferOwnership"
	who, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req OwnershipRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.NewOwner == nil {
		err = s.cfg.Service.RenounceOwnership(r.Context(), who)
	} else {
		err = s.cfg.Service.TransferOwnership(r.Context(), who, *req.NewOwner)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	const op = "credit"
	admin, err := caller(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req CreditRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.cfg.Service.Credit(r.Context(), admin, req.Account, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Service.Balances(req.Account))
}
