package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmund/sprout/internal/coinerr"
	"github.com/oakmund/sprout/internal/store"
)

func (s *Server) handleAppendEntry(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Amount      int64             `json:"amount"`
		ChangeKind  string            `json:"change_kind"`
		SourceKind  string            `json:"source_kind"`
		ReferenceID string            `json:"reference_id"`
		Description string            `json:"description"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.SourceKind == "" {
		req.SourceKind = "manual"
	}

	entry, err := s.db.Append(r.Context(), store.AppendInput{
		UserID:      userID,
		Amount:      req.Amount,
		ChangeKind:  store.ChangeKind(req.ChangeKind),
		SourceKind:  req.SourceKind,
		ReferenceID: req.ReferenceID,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := s.db.CurrentBalance(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	f := store.HistoryFilter{
		ChangeKind: store.ChangeKind(r.URL.Query().Get("kind")),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n > 0 {
			f.Offset = n
		}
	}
	if v := r.URL.Query().Get("start"); v != "" {
		ts, err := time.Parse(store.DateLayout, v)
		if err != nil {
			writeErr(w, coinerr.Validation("start %q: want YYYY-MM-DD", v))
			return
		}
		f.Start = ts
	}
	if v := r.URL.Query().Get("end"); v != "" {
		ts, err := time.Parse(store.DateLayout, v)
		if err != nil {
			writeErr(w, coinerr.Validation("end %q: want YYYY-MM-DD", v))
			return
		}
		// Inclusive end date: last millisecond of that day, since the
		// store compares created_at <= End.
		f.End = ts.AddDate(0, 0, 1).Add(-time.Millisecond)
	}

	entries, total, err := s.db.History(r.Context(), userID, f)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"total":   total,
		"entries": entries,
	})
}

// rewardRequest is shared by calculate and record.
type rewardRequest struct {
	UserID         string `json:"user_id"`
	TaskID         string `json:"task_id"`
	DifficultyID   string `json:"difficulty_id"`
	FocusMinutes   int    `json:"focus_minutes"`
	ResultQuantity int    `json:"result_quantity"`
	SessionDate    string `json:"session_date"` // YYYY-MM-DD, default today
}

func (req *rewardRequest) date() (time.Time, error) {
	if req.SessionDate == "" {
		return time.Now(), nil
	}
	d, err := time.ParseInLocation(store.DateLayout, req.SessionDate, time.Local)
	if err != nil {
		return time.Time{}, coinerr.Validation("session_date %q: want YYYY-MM-DD", req.SessionDate)
	}
	return d, nil
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	date, err := req.date()
	if err != nil {
		writeErr(w, err)
		return
	}

	res, err := s.calc.Calculate(r.Context(), req.UserID, req.TaskID, req.DifficultyID,
		req.FocusMinutes, req.ResultQuantity, date)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"total":  res.Total(),
	})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	date, err := req.date()
	if err != nil {
		writeErr(w, err)
		return
	}

	res, err := s.calc.Calculate(r.Context(), req.UserID, req.TaskID, req.DifficultyID,
		req.FocusMinutes, req.ResultQuantity, date)
	if err != nil {
		writeErr(w, err)
		return
	}

	sessionID, entries, err := s.calc.Record(r.Context(), res)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"result":     res,
		"total":      res.Total(),
		"entries":    entries,
	})
}

func (s *Server) handleDecayPreview(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, coinerr.Validation("days %q is not a number", v))
			return
		}
		days = n
	}

	proj, err := s.engine.Predict(r.Context(), userID, days)
	if err != nil {
		writeErr(w, err)
		return
	}

	var total int64
	for _, day := range proj {
		total += day.Amount
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"horizon_days": days,
		"total":        total,
		"days":         proj,
	})
}

func (s *Server) handleDecayRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	// Body is optional: an empty run sweeps all users.
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
			return
		}
	}

	stats, err := s.engine.TriggerManually(r.Context(), req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	rules, err := s.db.ListRules(r.Context(), activeOnly)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(rules),
		"rules": rules,
	})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule store.DecayRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	if err := s.db.CreateRule(r.Context(), &rule); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")
	rule, err := s.db.GetRule(r.Context(), ruleID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if rule == nil {
		writeErr(w, coinerr.NotFound("rule", ruleID))
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	rule, err := s.db.GetRule(r.Context(), ruleID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if rule == nil {
		writeErr(w, coinerr.NotFound("rule", ruleID))
		return
	}

	// Decode over the existing rule so omitted fields keep their values.
	if err := json.NewDecoder(r.Body).Decode(rule); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	rule.ID = ruleID

	if err := s.db.UpdateRule(r.Context(), rule); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
