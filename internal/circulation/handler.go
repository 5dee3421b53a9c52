// internal/circulation/handler.go
package circulation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"libradesk/internal/domain"
	"libradesk/internal/httpx"
	"libradesk/internal/store"
)

// maxBatch bounds the loan ids accepted by one batch action.
const maxBatch = 100

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// BatchRequest selects loans for a batch action.
type BatchRequest struct {
	LoanIDs   []uuid.UUID `json:"loan_ids"`
	Condition string      `json:"condition,omitempty"`
	Notes     string      `json:"notes,omitempty"`
	FinePaid  bool        `json:"fine_paid,omitempty"`
}

// createLoanBody is the wire form of CreateLoanRequest; due_date is a
// calendar day.
type createLoanBody struct {
	BookID   uuid.UUID `json:"book_id"`
	MemberID uuid.UUID `json:"member_id"`
	DueDate  string    `json:"due_date,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

func (b createLoanBody) request() (CreateLoanRequest, error) {
	req := CreateLoanRequest{BookID: b.BookID, MemberID: b.MemberID, Notes: b.Notes}
	if b.BookID == uuid.Nil || b.MemberID == uuid.Nil {
		return req, domain.Invalid("book_id and member_id are required")
	}
	if b.DueDate != "" {
		due, err := domain.ParseDate("due_date", b.DueDate)
		if err != nil {
			return req, err
		}
		req.DueDate = &due
	}
	return req, nil
}

type cancelRequest struct {
	Notes string `json:"notes,omitempty"`
}

// Mount registers the loan routes, all staff only, and the public dashboard.
func (h *Handler) Mount(r chi.Router, requireStaff func(http.Handler) http.Handler) {
	r.Get("/stats", h.HandleStats)

	r.Route("/loans", func(r chi.Router) {
		r.Use(requireStaff)
		r.Get("/", h.HandleListLoans)
		r.Post("/", h.HandleCreateLoan)
		r.Post("/actions/return", h.HandleReturnLoans)
		r.Post("/actions/calculate-fines", h.HandleCalculateFines)
		r.Get("/{id}", h.HandleGetLoan)
		r.Get("/{id}/events", h.HandleLoanEvents)
		r.Post("/{id}/return", h.HandleReturnLoan)
		r.Post("/{id}/cancel", h.HandleCancelLoan)
		r.Post("/{id}/fine", h.HandleRecompute)
		r.Post("/{id}/pay", h.HandlePayFine)
	})
}

func (h *Handler) HandleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var body createLoanBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	req, err := body.request()
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var loan *LoanDetail
	err = httpx.Retry(r, "create_loan", func(ctx context.Context) (err error) {
		loan, err = h.service.CreateLoan(ctx, req)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) HandleReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req ReturnRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}

	h.loanAction(w, r, "return_loan", func(ctx context.Context) (*LoanDetail, error) {
		return h.service.ReturnLoan(ctx, id, req)
	})
}

func (h *Handler) HandleCancelLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}

	h.loanAction(w, r, "cancel_loan", func(ctx context.Context) (*LoanDetail, error) {
		return h.service.CancelLoan(ctx, id, req.Notes)
	})
}

func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	h.loanAction(w, r, "recompute_loan", func(ctx context.Context) (*LoanDetail, error) {
		return h.service.RecomputeOverdueAndFine(ctx, id)
	})
}

func (h *Handler) HandlePayFine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	h.loanAction(w, r, "pay_fine", func(ctx context.Context) (*LoanDetail, error) {
		return h.service.PayFine(ctx, id)
	})
}

func (h *Handler) HandleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	h.loanAction(w, r, "get_loan", func(ctx context.Context) (*LoanDetail, error) {
		return h.service.GetLoan(ctx, id)
	})
}

// loanAction runs a single-loan operation with conflict retries.
func (h *Handler) loanAction(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) (*LoanDetail, error)) {
	var loan *LoanDetail
	err := httpx.Retry(r, op, func(ctx context.Context) (err error) {
		loan, err = fn(ctx)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) HandleListLoans(w http.ResponseWriter, r *http.Request) {
	filter := store.LoanFilter{Status: r.URL.Query().Get("status")}
	list, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleLoanEvents(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	events, err := h.service.LoanEvents(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) HandleReturnLoans(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	result := h.service.ReturnLoans(r.Context(), req.LoanIDs, ReturnRequest{
		Condition: req.Condition,
		Notes:     req.Notes,
		FinePaid:  req.FinePaid,
	})
	h.writeBatch(w, result)
}

func (h *Handler) HandleCalculateFines(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	h.writeBatch(w, h.service.CalculateFines(r.Context(), req.LoanIDs))
}

func (h *Handler) decodeBatch(w http.ResponseWriter, r *http.Request) (BatchRequest, bool) {
	var req BatchRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return req, false
	}
	switch {
	case len(req.LoanIDs) == 0:
		httpx.WriteError(w, r, h.logger, domain.Invalid("loan_ids must not be empty"))
		return req, false
	case len(req.LoanIDs) > maxBatch:
		httpx.WriteError(w, r, h.logger, domain.Invalid("at most %d loan_ids per request", maxBatch))
		return req, false
	}
	return req, true
}

// writeBatch replaces each item error with its client-facing message.
func (h *Handler) writeBatch(w http.ResponseWriter, result *BatchResult) {
	for i := range result.Items {
		if err := result.Items[i].Err(); err != nil {
			_, msg := httpx.Status(err)
			result.Items[i].Error = msg
		}
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}
