package slot_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-reviews/internal/admin"
	"ms-reviews/internal/auth"
	"ms-reviews/internal/common"
	"ms-reviews/internal/logger"
	"ms-reviews/internal/models"
	"ms-reviews/internal/quota"
	"ms-reviews/internal/reservation"
	"ms-reviews/internal/sse"
	"ms-reviews/internal/submission"
	"ms-reviews/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Reservations interface {
	Claim(ctx context.Context, req reservation.ClaimRequest) (*models.Slot, error)
	Cancel(ctx context.Context, req reservation.CancelRequest) (*models.Slot, error)
	ListSlots(ctx context.Context, campaignID int64, userID string, asOf time.Time) ([]models.SlotView, error)
	DailyLimitStatus(ctx context.Context, userID, platform string, asOf time.Time) (*models.DailyLimitStatus, error)
}

type Quotas interface {
	Synchronize(ctx context.Context, campaignID int64, asOf time.Time) (*models.SyncResult, error)
	UpdateDailyCount(ctx context.Context, campaignID int64, dailyCount int, asOf time.Time) (*models.SyncResult, error)
	Approve(ctx context.Context, campaignID int64, asOf time.Time) (*quota.ApproveResult, error)
	History(ctx context.Context, campaignID int64) ([]models.DailyQuota, error)
}

type Submissions interface {
	Submit(ctx context.Context, req submission.Request) (*models.Submission, error)
	Edit(ctx context.Context, req submission.Request) (*models.Submission, error)
	Get(ctx context.Context, slotID int64, userID string) (*models.Submission, error)
	SetPaymentStatus(ctx context.Context, submissionID string, status models.PaymentStatus, asOf time.Time) (*models.Submission, error)
}

type BulkMutator interface {
	BulkSetStatus(ctx context.Context, campaignID int64, slotIDs []int64, target models.SlotStatus, asOf time.Time) (*admin.BulkResult, error)
}

type Handler struct {
	Reservations Reservations
	Quotas       Quotas
	Submissions  Submissions
	Admin        BulkMutator
	Events       *sse.SlotEventEmitter
	Logger       *logger.Logger
	Now          func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// RegisterRoutes mounts the user and admin API. authn authenticates every route;
// admin additionally guards the /api/admin subtree.
func (h *Handler) RegisterRoutes(r chi.Router, authn, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(authn)

		r.Route("/campaigns/{campaignId}/slots", func(r chi.Router) {
			r.Get("/", h.ListSlots)
			r.Get("/stream", h.StreamSlots)
			r.Post("/{slotId}/claim", h.Claim)
			r.Delete("/{slotId}/claim", h.Cancel)
		})

		r.Route("/slots/{slotId}/submission", func(r chi.Router) {
			r.Get("/", h.GetSubmission)
			r.Post("/", h.Submit)
			r.Put("/", h.EditSubmission)
		})

		r.Get("/users/me/daily-limit", h.DailyLimit)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/campaigns/{campaignId}/approve", h.Approve)
			r.Post("/campaigns/{campaignId}/synchronize", h.Synchronize)
			r.Put("/campaigns/{campaignId}/daily-count", h.UpdateDailyCount)
			r.Get("/campaigns/{campaignId}/quota", h.QuotaHistory)
			r.Post("/campaigns/{campaignId}/slots/status", h.BulkSetStatus)
			r.Put("/submissions/{submissionId}/payment", h.SetPaymentStatus)
		})
	})
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	userID := auth.UserID(r.Context())

	var views []models.SlotView
	err := retryOnce(func() (err error) {
		views, err = h.Reservations.ListSlots(r.Context(), campaignID, userID, h.now())
		return err
	})
	if err != nil {
		h.writeError(w, r, "ListSlots", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Slots retrieved", views))
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	slotID, ok := h.idParam(w, r, "slotId")
	if !ok {
		return
	}
	id := auth.FromContext(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Claim: campaign=%d slot=%d user=%s", campaignID, slotID, id.UserID))

	req := reservation.ClaimRequest{
		CampaignID:      campaignID,
		SlotID:          slotID,
		UserID:          id.UserID,
		ProfileComplete: id.ProfileComplete,
		AsOf:            h.now(),
	}
	var slot *models.Slot
	err := retryOnce(func() (err error) {
		slot, err = h.Reservations.Claim(r.Context(), req)
		return err
	})
	if err != nil {
		h.writeError(w, r, "Claim", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Slot reserved", slot))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	slotID, ok := h.idParam(w, r, "slotId")
	if !ok {
		return
	}
	req := reservation.CancelRequest{
		CampaignID: campaignID,
		SlotID:     slotID,
		UserID:     auth.UserID(r.Context()),
		AsOf:       h.now(),
	}

	var slot *models.Slot
	err := retryOnce(func() (err error) {
		slot, err = h.Reservations.Cancel(r.Context(), req)
		return err
	})
	if err != nil {
		h.writeError(w, r, "Cancel", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Reservation cancelled", slot))
}

func (h *Handler) DailyLimit(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")

	var status *models.DailyLimitStatus
	err := retryOnce(func() (err error) {
		status, err = h.Reservations.DailyLimitStatus(r.Context(), auth.UserID(r.Context()), platform, h.now())
		return err
	})
	if err != nil {
		h.writeError(w, r, "DailyLimit", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Daily limit status", status))
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, name, (&common.ValidationError{}).Add(name, fmt.Sprintf("invalid id %q", raw)))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, op, fmt.Errorf("%w: request body: %v", common.ErrInvalidInput, err))
		return false
	}
	return true
}
