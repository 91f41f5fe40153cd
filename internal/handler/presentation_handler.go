package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"presentation-api/internal/middleware"
	"presentation-api/internal/model"
	"presentation-api/internal/service"
	"presentation-api/pkg/apierror"
)

// maxPayloadPartSize bounds the structured JSON text field of a multipart
// request; everything larger than this is attachments, not metadata.
const maxPayloadPartSize = 1 << 20

type PresentationHandler struct {
	service        *service.PresentationService
	maxRequestSize int64
}

func NewPresentationHandler(service *service.PresentationService, maxRequestSize int64) *PresentationHandler {
	return &PresentationHandler{service: service, maxRequestSize: maxRequestSize}
}

func (h *PresentationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	payloadText, uploads, err := h.readMultipart(w, r, "presentationData", claims.Subject)
	if err != nil {
		writeError(w, err)
		return
	}

	if payloadText == "" {
		h.service.CleanupUploads(uploads)
		writeError(w, apierror.New("BAD_REQUEST", "presentationData is required", "", http.StatusBadRequest))
		return
	}

	pres, err := h.service.Create(r.Context(), claims.Subject, payloadText, uploads)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.service.Detail(r.Context(), pres)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "presentation created", detail)
}

func (h *PresentationHandler) Update(w http.ResponseWriter, r *http.Request) {
	pres, ok := middleware.PresentationFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("INTERNAL_ERROR", "unexpected server error", "", http.StatusInternalServerError))
		return
	}

	payloadText, uploads, err := h.readMultipart(w, r, "updateData", pres.OwnerID)
	if err != nil {
		writeError(w, err)
		return
	}

	// A file-only update is legal; the service treats an empty object plus no
	// uploads as nothing to update.
	if payloadText == "" {
		payloadText = "{}"
	}

	updated, err := h.service.Update(r.Context(), pres, payloadText, uploads)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.service.Detail(r.Context(), updated)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "presentation updated", detail)
}

func (h *PresentationHandler) Get(w http.ResponseWriter, r *http.Request) {
	pres, ok := middleware.PresentationFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("INTERNAL_ERROR", "unexpected server error", "", http.StatusInternalServerError))
		return
	}

	detail, err := h.service.Detail(r.Context(), pres)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	writeSuccess(w, http.StatusOK, "", detail)
}

func (h *PresentationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()
	opts := service.ListOptions{
		Page:  parseIntDefault(query.Get("page"), 0),
		Limit: parseIntDefault(query.Get("limit"), 0),
		Sort:  query.Get("sort"),
		Order: query.Get("order"),
	}

	if raw := query.Get("isDraft"); raw != "" {
		draft := strings.EqualFold(raw, "true")
		opts.IsDraft = &draft
	}

	list, err := h.service.List(r.Context(), claims.Subject, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	writeSuccess(w, http.StatusOK, "", list)
}

func (h *PresentationHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	pres, ok := middleware.PresentationFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("INTERNAL_ERROR", "unexpected server error", "", http.StatusInternalServerError))
		return
	}

	query := r.URL.Query()
	slot := query.Get("slot")
	if slot == "" {
		slot = "securityImage"
	}
	index := parseIntDefault(query.Get("index"), 0)
	size := parseIntDefault(query.Get("size"), 256)

	thumbPath, err := h.service.Thumbnail(pres, slot, index, size)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, thumbPath)
}

// readMultipart streams the request body: the named text field is buffered,
// fixed-slot files and security images are written to storage as they arrive.
// On any error the files already stored are deleted before returning.
func (h *PresentationHandler) readMultipart(w http.ResponseWriter, r *http.Request, payloadField string, ownerID string) (string, *model.UploadSet, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)

	reader, err := r.MultipartReader()
	if err != nil {
		return "", model.NewUploadSet(), apierror.New("BAD_REQUEST",
			"multipart/form-data body required", "", http.StatusBadRequest)
	}

	uploads := model.NewUploadSet()
	var payloadText string

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.service.CleanupUploads(uploads)
			return "", uploads, apierror.New("BAD_REQUEST",
				"malformed multipart body", err.Error(), http.StatusBadRequest)
		}

		name := part.FormName()
		switch {
		case name == payloadField:
			text, err := readPartText(part)
			if err != nil {
				h.service.CleanupUploads(uploads)
				return "", uploads, err
			}
			payloadText = text

		case isFileSlot(name):
			if part.FileName() == "" {
				part.Close()
				continue
			}
			// Only the first file per slot counts; repeats are discarded.
			if _, taken := uploads.Slots[name]; taken {
				drainPart(part)
				continue
			}
			stored, err := h.service.SaveUpload(ownerID, part.FileName(), part)
			part.Close()
			if err != nil {
				h.service.CleanupUploads(uploads)
				return "", uploads, err
			}
			uploads.Slots[name] = stored

		case name == "securityImages":
			if part.FileName() == "" {
				part.Close()
				continue
			}
			if len(uploads.SecurityImages) >= model.MaxSecurityImages {
				part.Close()
				h.service.CleanupUploads(uploads)
				return "", uploads, apierror.New("BAD_REQUEST",
					fmt.Sprintf("at most %d security images per request", model.MaxSecurityImages),
					"securityImages", http.StatusBadRequest)
			}
			stored, err := h.service.SaveUpload(ownerID, part.FileName(), part)
			part.Close()
			if err != nil {
				h.service.CleanupUploads(uploads)
				return "", uploads, err
			}
			uploads.SecurityImages = append(uploads.SecurityImages, stored)

		default:
			drainPart(part)
		}
	}

	return payloadText, uploads, nil
}

func isFileSlot(name string) bool {
	for _, slot := range model.FileSlots {
		if name == slot {
			return true
		}
	}
	return false
}

func readPartText(part *multipart.Part) (string, error) {
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxPayloadPartSize+1))
	if err != nil {
		return "", apierror.New("BAD_REQUEST", "failed to read form field", part.FormName(), http.StatusBadRequest)
	}
	if len(data) > maxPayloadPartSize {
		return "", apierror.New("PAYLOAD_TOO_LARGE", "form field too large", part.FormName(), http.StatusRequestEntityTooLarge)
	}
	return string(data), nil
}

func drainPart(part *multipart.Part) {
	_, _ = io.Copy(io.Discard, part)
	part.Close()
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}
