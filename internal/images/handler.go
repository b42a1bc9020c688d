package images

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

const maxUploadBytes = 32 << 20

// Handler serves attachment routes for one document kind.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	entityType EntityType
}

// NewHandler constructs a Handler bound to one entity type.
func NewHandler(logger *slog.Logger, service *Service, entityType EntityType) *Handler {
	return &Handler{logger: logger, service: service, entityType: entityType}
}

// MountRoutes registers image routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/images", h.upload)
	r.Get("/{id}/images", h.list)
	r.Delete("/{id}/images/{imageID}", h.remove)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", err.Error())
		return
	}
	var files []File
	for _, header := range r.MultipartForm.File["images"] {
		f, err := header.Open()
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", err.Error())
			return
		}
		defer f.Close()
		files = append(files, File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        f,
		})
	}
	result, err := h.service.Attach(r.Context(), h.entityType, id, files)
	if err != nil {
		h.logger.Error("attach images", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if len(result.Stored) == 0 {
		// Nothing made it; the document is untouched either way.
		status = http.StatusBadGateway
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	imageID, _ := strconv.ParseInt(chi.URLParam(r, "imageID"), 10, 64)
	if err := h.service.Remove(r.Context(), h.entityType, imageID); err != nil {
		h.logger.Error("remove image", slog.Any("error", err), slog.Int64("image_id", imageID))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	imgs, err := h.service.List(r.Context(), h.entityType, id)
	if err != nil {
		h.logger.Error("list images", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, imgs)
}
