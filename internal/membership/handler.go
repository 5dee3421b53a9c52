// internal/membership/handler.go
package membership

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libradesk/internal/domain"
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

// Mount registers the member routes. Reads are public; changes need staff.
func (h *Handler) Mount(r chi.Router, requireStaff func(http.Handler) http.Handler) {
	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.HandleListMembers)
		r.Get("/{id}", h.HandleGetMember)

		r.Group(func(r chi.Router) {
			r.Use(requireStaff)
			r.Post("/", h.HandleRegisterMember)
			r.Put("/{id}", h.HandleUpdateMember)
			r.Delete("/{id}", h.HandleDeleteMember)
			r.Post("/{id}/deactivate", h.HandleDeactivateMember)
		})
	})
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	filter := store.MemberFilter{MembershipType: r.URL.Query().Get("class")}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, r, h.logger, domain.Invalid("active must be true or false"))
			return
		}
		filter.Active = &active
	}

	members, err := h.service.ListMembers(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) HandleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req MemberInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var member *MemberDetail
	err := httpx.Retry(r, "register_member", func(ctx context.Context) (err error) {
		member, err = h.service.RegisterMember(ctx, req)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, member)
}

func (h *Handler) HandleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req MemberInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var member *MemberDetail
	err = httpx.Retry(r, "update_member", func(ctx context.Context) (err error) {
		member, err = h.service.UpdateMember(ctx, id, req)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) HandleDeactivateMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var member *MemberDetail
	err = httpx.Retry(r, "deactivate_member", func(ctx context.Context) (err error) {
		member, err = h.service.DeactivateMember(ctx, id)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) HandleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	err = httpx.Retry(r, "delete_member", func(ctx context.Context) error {
		return h.service.DeleteMember(ctx, id)
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
