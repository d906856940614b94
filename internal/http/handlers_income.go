package http

import (
	"net/http"

	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"
)

type homeRequest struct {
	Name     string `json:"name"`
	Personal bool   `json:"personal"`
}

type homeResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	OwnerUID string `json:"owner_uid"`
	Personal bool   `json:"personal"`
}

type memberRequest struct {
	UID string `json:"uid"`
}

// incomeRequest carries the amount either as integer cents or as a decimal
// string; see parseAmount.
type incomeRequest struct {
	HomeID      string `json:"home_id"`
	Source      string `json:"source"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount,omitempty"`
	Frequency   string `json:"frequency"`
	Scope       string `json:"scope"`
	Date        string `json:"date"`
	EndDate     string `json:"end_date,omitempty"`
}

type incomeResponse struct {
	ID          string `json:"id"`
	HomeID      string `json:"home_id"`
	Source      string `json:"source"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Frequency   string `json:"frequency"`
	Scope       string `json:"scope"`
	CreatedBy   string `json:"created_by"`
	Date        string `json:"date"`
	EndDate     string `json:"end_date,omitempty"`
	GroupID     string `json:"group_id"`
}

type amendRequest struct {
	EndDate     string `json:"end_date"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount,omitempty"`
}

func toHomeResponse(h core.Home) homeResponse {
	return homeResponse{ID: h.ID, Name: h.Name, OwnerUID: h.OwnerUID, Personal: h.Personal}
}

func toIncomeResponse(r core.IncomeRecord) incomeResponse {
	return incomeResponse{
		ID:          r.ID,
		HomeID:      r.HomeID,
		Source:      r.Source,
		AmountCents: r.Amount.Cents,
		Amount:      formatEuros(r.Amount.Cents),
		Frequency:   string(r.Frequency),
		Scope:       string(r.Scope.OrShared()),
		CreatedBy:   r.CreatedByUID,
		Date:        formatDate(r.Date),
		EndDate:     formatDate(r.EndDate),
		GroupID:     r.GroupID,
	}
}

func (s *Server) handleCreateHome(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req homeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := sanitizeInput(req.Name)
	if err := (core.Home{Name: name, OwnerUID: uid}).Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	home, err := s.incomes.CreateHome(r.Context(), name, uid, req.Personal)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "Home created",
		log.FieldHomeID, home.ID,
		log.FieldViewerUID, uid)
	respondJSON(w, http.StatusCreated, toHomeResponse(*home))
}

func (s *Server) handleListHomes(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	homes, err := s.incomes.ListHomes(r.Context(), uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]homeResponse, 0, len(homes))
	for _, h := range homes {
		out = append(out, toHomeResponse(h))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	homeID := sanitizeInput(r.PathValue("id"))

	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	memberUID := sanitizeInput(req.UID)
	if memberUID == "" {
		respondError(w, http.StatusUnprocessableEntity, "member uid is required")
		return
	}

	if err := s.incomes.AddMember(r.Context(), homeID, uid, memberUID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid date, want YYYY-MM-DD")
		return
	}
	var endDate core.Date
	if req.EndDate != "" {
		endDate, err = parseDate(req.EndDate)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "invalid end date, want YYYY-MM-DD")
			return
		}
	}

	rec := core.IncomeRecord{
		HomeID:       sanitizeInput(req.HomeID),
		Source:       sanitizeInput(req.Source),
		Amount:       amount,
		Frequency:    core.Frequency(req.Frequency),
		Scope:        core.Scope(req.Scope),
		CreatedByUID: uid,
		Date:         date,
		EndDate:      endDate,
	}
	if err := rec.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.incomes.CreateIncome(r.Context(), rec)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.invalidateDashboards(created.HomeID)
	s.logger.InfoContext(r.Context(), "Income created",
		log.FieldIncomeID, created.ID,
		log.FieldHomeID, created.HomeID,
		log.FieldIncomeSource, created.Source,
		log.FieldAmountCents, created.Amount.Cents,
		log.FieldFrequency, string(created.Frequency))
	respondJSON(w, http.StatusCreated, toIncomeResponse(*created))
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	homeID := sanitizeInput(r.URL.Query().Get("home"))
	if homeID == "" {
		respondError(w, http.StatusBadRequest, "home query parameter is required")
		return
	}

	records, err := s.incomes.ListIncomes(r.Context(), homeID, uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]incomeResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toIncomeResponse(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	id := sanitizeInput(r.PathValue("id"))

	deleted, err := s.incomes.DeleteIncome(r.Context(), id, uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.invalidateDashboards(deleted.HomeID)
	s.logger.InfoContext(r.Context(), "Income deleted",
		log.FieldIncomeID, id,
		log.FieldHomeID, deleted.HomeID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAmendIncome(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	id := sanitizeInput(r.PathValue("id"))

	var req amendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid end date, want YYYY-MM-DD")
		return
	}

	successor, err := s.incomes.AmendIncome(r.Context(), id, uid, endDate, amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.invalidateDashboards(successor.HomeID)
	s.logger.InfoContext(r.Context(), "Income amended",
		log.FieldIncomeID, id,
		log.FieldHomeID, successor.HomeID,
		log.FieldGroupID, successor.GroupID,
		log.FieldAmountCents, successor.Amount.Cents)
	respondJSON(w, http.StatusOK, toIncomeResponse(*successor))
}
