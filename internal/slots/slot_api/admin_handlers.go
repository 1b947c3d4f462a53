package slot_api

import (
	"fmt"
	"net/http"

	"ms-reviews/internal/auth"
	"ms-reviews/internal/common"
	"ms-reviews/internal/models"
	"ms-reviews/internal/quota"
	"ms-reviews/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Approve: campaign=%d by %s", campaignID, auth.UserID(r.Context())))

	var res *quota.ApproveResult
	err := retryOnce(func() (err error) {
		res, err = h.Quotas.Approve(r.Context(), campaignID, h.now())
		return err
	})
	if err != nil {
		h.writeError(w, r, "Approve", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Campaign approved", res))
}

func (h *Handler) Synchronize(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	var res *models.SyncResult
	err := retryOnce(func() (err error) {
		res, err = h.Quotas.Synchronize(r.Context(), campaignID, h.now())
		return err
	})
	if err != nil {
		h.writeError(w, r, "Synchronize", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Campaign synchronized", res))
}

func (h *Handler) UpdateDailyCount(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	var body struct {
		DailyCount *int `json:"daily_count"`
	}
	if !h.decode(w, r, "UpdateDailyCount", &body) {
		return
	}
	if body.DailyCount == nil {
		h.writeError(w, r, "UpdateDailyCount", (&common.ValidationError{}).Add("daily_count", "is required"))
		return
	}

	var res *models.SyncResult
	err := retryOnce(func() (err error) {
		res, err = h.Quotas.UpdateDailyCount(r.Context(), campaignID, *body.DailyCount, h.now())
		return err
	})
	if err != nil {
		h.writeError(w, r, "UpdateDailyCount", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Daily count updated", res))
}

func (h *Handler) QuotaHistory(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	rows, err := h.Quotas.History(r.Context(), campaignID)
	if err != nil {
		h.writeError(w, r, "QuotaHistory", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Quota history", rows))
}

func (h *Handler) BulkSetStatus(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.idParam(w, r, "campaignId")
	if !ok {
		return
	}
	var body struct {
		SlotIDs []int64           `json:"slot_ids"`
		Status  models.SlotStatus `json:"status"`
	}
	if !h.decode(w, r, "BulkSetStatus", &body) {
		return
	}
	h.Logger.Info("API", fmt.Sprintf("BulkSetStatus: campaign=%d %d slots -> %s by %s",
		campaignID, len(body.SlotIDs), body.Status, auth.UserID(r.Context())))

	// Not retried: items that already succeeded must not be forced twice.
	res, err := h.Admin.BulkSetStatus(r.Context(), campaignID, body.SlotIDs, body.Status, h.now())
	if err != nil {
		h.writeError(w, r, "BulkSetStatus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bulk status applied", res))
}

func (h *Handler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionId")
	var body struct {
		Status models.PaymentStatus `json:"payment_status"`
	}
	if !h.decode(w, r, "SetPaymentStatus", &body) {
		return
	}

	var sub *models.Submission
	err := retryOnce(func() (err error) {
		sub, err = h.Submissions.SetPaymentStatus(r.Context(), submissionID, body.Status, h.now())
		return err
	})
	if err != nil {
		h.writeError(w, r, "SetPaymentStatus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment status updated", sub))
}
