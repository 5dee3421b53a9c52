// internal/catalog/handler.go
package catalog

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"libradesk/internal/httpx"
	"libradesk/internal/store"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Mount registers the book routes. Reads are public; changes need staff.
func (h *Handler) Mount(r chi.Router, requireStaff func(http.Handler) http.Handler) {
	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.HandleSearch)
		r.Get("/{id}", h.HandleGetBook)
		r.Get("/{id}/availability", h.HandleAvailability)

		r.Group(func(r chi.Router) {
			r.Use(requireStaff)
			r.Post("/", h.HandleAddBook)
			r.Put("/{id}", h.HandleUpdateBook)
			r.Delete("/{id}", h.HandleDeleteBook)
		})
	})
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.Search(r.Context(), store.BookFilter{
		Query:    q.Get("q"),
		Genre:    q.Get("genre"),
		Author:   q.Get("author"),
		Page:     httpx.IntQuery(r, "page", 1),
		PageSize: httpx.IntQuery(r, "page_size", store.DefaultPageSize),
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	a, err := h.service.Availability(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) HandleAddBook(w http.ResponseWriter, r *http.Request) {
	var req BookInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var book *BookDetail
	err := httpx.Retry(r, "add_book", func(ctx context.Context) (err error) {
		book, err = h.service.AddBook(ctx, req)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req BookInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var book *BookDetail
	err = httpx.Retry(r, "update_book", func(ctx context.Context) (err error) {
		book, err = h.service.UpdateBook(ctx, id, req)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	err = httpx.Retry(r, "delete_book", func(ctx context.Context) error {
		return h.service.DeleteBook(ctx, id)
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
