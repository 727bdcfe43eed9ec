package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/briefdelights/briefly/pkg/domain"
	"github.com/briefdelights/briefly/pkg/repository"
)

// trackArticleHandler records a click and redirects to the destination. A bad
// destination is rejected, a failed write never blocks the reader.
func (s *Server) trackArticleHandler(w http.ResponseWriter, r *http.Request) {
	dest := r.URL.Query().Get("url")
	if !validRedirectURL(dest) {
		renderError(w, r, fmt.Errorf("invalid destination url"), http.StatusBadRequest)
		return
	}

	click := domain.ClickEvent{
		URL:     dest,
		Segment: r.URL.Query().Get("s"),
		Date:    r.URL.Query().Get("d"),
		Tier:    r.URL.Query().Get("t"),
	}
	if err := s.tracking.RecordClick(r.Context(), click); err != nil {
		log.Printf("[WARN] failed to record click for %s: %v", dest, err)
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

// trackSponsorHandler counts a sponsor click and redirects. The sched param
// carries the schedule entry id; default-sponsor clicks have none and only
// redirect.
func (s *Server) trackSponsorHandler(w http.ResponseWriter, r *http.Request) {
	dest := r.URL.Query().Get("url")
	if !validRedirectURL(dest) {
		renderError(w, r, fmt.Errorf("invalid destination url"), http.StatusBadRequest)
		return
	}

	if sched := r.URL.Query().Get("sched"); sched != "" {
		id, err := strconv.ParseInt(sched, 10, 64)
		if err != nil {
			renderError(w, r, fmt.Errorf("invalid schedule id"), http.StatusBadRequest)
			return
		}
		if err := s.sponsors.IncrementClicks(r.Context(), id); err != nil {
			log.Printf("[WARN] failed to count sponsor click for schedule %d: %v", id, err)
		}
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

// subscribeRequest is the signup payload
type subscribeRequest struct {
	Email      string `json:"email"`
	Segment    string `json:"segment"`
	ReferredBy string `json:"referred_by,omitempty"`
}

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if !strings.Contains(req.Email, "@") {
		renderError(w, r, fmt.Errorf("invalid email"), http.StatusBadRequest)
		return
	}
	if req.Segment == "" {
		renderError(w, r, fmt.Errorf("segment is required"), http.StatusBadRequest)
		return
	}

	id, err := s.subscribers.Create(r.Context(), req.Email, req.Segment, referralCode(), req.ReferredBy)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			renderError(w, r, fmt.Errorf("already subscribed"), http.StatusConflict)
			return
		}
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusCreated, map[string]any{"id": id, "status": domain.SubscriberPending})
}

func (s *Server) confirmHandler(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		renderError(w, r, fmt.Errorf("email is required"), http.StatusBadRequest)
		return
	}
	if err := s.subscribers.Confirm(r.Context(), email); err != nil {
		renderError(w, r, err, errCode(err))
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"status": domain.SubscriberConfirmed})
}

func (s *Server) unsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		renderError(w, r, fmt.Errorf("email is required"), http.StatusBadRequest)
		return
	}
	if err := s.subscribers.Unsubscribe(r.Context(), email); err != nil {
		renderError(w, r, err, errCode(err))
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"status": domain.SubscriberUnsubscribed})
}

func (s *Server) createSponsorHandler(w http.ResponseWriter, r *http.Request) {
	var c domain.SponsorContent
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if c.Company == "" || c.Headline == "" {
		renderError(w, r, fmt.Errorf("company and headline are required"), http.StatusBadRequest)
		return
	}

	id, err := s.sponsors.CreateContent(r.Context(), c)
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listSponsorsHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	sponsors, err := s.sponsors.ListContent(r.Context(), activeOnly)
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, sponsors)
}

func (s *Server) setSponsorActiveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid sponsor id"), http.StatusBadRequest)
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if err := s.sponsors.SetContentActive(r.Context(), id, req.Active); err != nil {
		renderError(w, r, err, errCode(err))
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]bool{"active": req.Active})
}

// scheduleRequest books a creative for one edition
type scheduleRequest struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Segment   string `json:"segment"`
	SponsorID int64  `json:"sponsor_id"`
}

func (s *Server) scheduleSponsorHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		renderError(w, r, fmt.Errorf("invalid date, expected YYYY-MM-DD"), http.StatusBadRequest)
		return
	}
	if req.Segment == "" || req.SponsorID == 0 {
		renderError(w, r, fmt.Errorf("segment and sponsor_id are required"), http.StatusBadRequest)
		return
	}

	id, err := s.sponsors.Schedule(r.Context(), req.Date, req.Segment, req.SponsorID)
	if err != nil {
		renderError(w, r, err, errCode(err))
		return
	}
	renderJSON(w, r, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listScheduleHandler(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		renderError(w, r, fmt.Errorf("from and to are required"), http.StatusBadRequest)
		return
	}
	entries, err := s.sponsors.ListSchedule(r.Context(), from, to)
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, entries)
}

func (s *Server) cancelScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid schedule id"), http.StatusBadRequest)
		return
	}
	if err := s.sponsors.CancelSchedule(r.Context(), id); err != nil {
		renderError(w, r, err, errCode(err))
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"status": domain.ScheduleStatusCancelled})
}

func (s *Server) listSubscribersHandler(w http.ResponseWriter, r *http.Request) {
	filter := repository.Filter{
		Segment: r.URL.Query().Get("segment"),
		Status:  r.URL.Query().Get("status"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.ParseUint(limit, 10, 64)
		if err != nil {
			renderError(w, r, fmt.Errorf("invalid limit"), http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	subscribers, err := s.subscribers.List(r.Context(), filter)
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, subscribers)
}

func (s *Server) subscriberCountsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.subscribers.CountBySegment(r.Context())
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, counts)
}

// validRedirectURL accepts absolute http(s) destinations only, an open
// redirect filter for the tracking endpoints
func validRedirectURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// referralCode generates a short code for new subscribers
func referralCode() string {
	return uuid.NewString()[:8]
}
