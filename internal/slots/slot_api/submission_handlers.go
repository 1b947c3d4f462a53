package slot_api

import (
	"net/http"

	"ms-reviews/internal/auth"
	"ms-reviews/internal/models"
	"ms-reviews/internal/submission"
	"ms-reviews/internal/utils"
)

type submissionBody struct {
	models.Profile
	Attachments []string `json:"attachments"`
}

func (h *Handler) submissionRequest(w http.ResponseWriter, r *http.Request, op string) (submission.Request, bool) {
	slotID, ok := h.idParam(w, r, "slotId")
	if !ok {
		return submission.Request{}, false
	}
	var body submissionBody
	if !h.decode(w, r, op, &body) {
		return submission.Request{}, false
	}
	return submission.Request{
		SlotID:      slotID,
		UserID:      auth.UserID(r.Context()),
		Profile:     body.Profile,
		Attachments: body.Attachments,
		AsOf:        h.now(),
	}, true
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.submissionRequest(w, r, "Submit")
	if !ok {
		return
	}
	var sub *models.Submission
	err := retryOnce(func() (err error) {
		sub, err = h.Submissions.Submit(r.Context(), req)
		return err
	})
	if err != nil {
		h.writeError(w, r, "Submit", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Submission recorded", sub))
}

func (h *Handler) EditSubmission(w http.ResponseWriter, r *http.Request) {
	req, ok := h.submissionRequest(w, r, "EditSubmission")
	if !ok {
		return
	}
	var sub *models.Submission
	err := retryOnce(func() (err error) {
		sub, err = h.Submissions.Edit(r.Context(), req)
		return err
	})
	if err != nil {
		h.writeError(w, r, "EditSubmission", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Submission updated", sub))
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	slotID, ok := h.idParam(w, r, "slotId")
	if !ok {
		return
	}
	sub, err := h.Submissions.Get(r.Context(), slotID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, "GetSubmission", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Submission retrieved", sub))
}
