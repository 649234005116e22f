package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campustrace-backend/internal/domain"
	"github.com/tbourn/go-campustrace-backend/internal/http/middleware"
	"github.com/tbourn/go-campustrace-backend/internal/services"
	"github.com/tbourn/go-campustrace-backend/internal/utils"
)

// CreateItemRequest is the JSON form of a new post. Multipart requests carry
// the same fields as form values plus an optional "image" file.
type CreateItemRequest struct {
	Status      string   `json:"status" form:"status" example:"Found"`
	Category    string   `json:"category" form:"category" example:"Electronics"`
	Title       string   `json:"title" form:"title" example:"Black iPhone 13"`
	Description string   `json:"description" form:"description" example:"Found near the library entrance"`
	Location    string   `json:"location" form:"location" example:"Main library"`
	ContactInfo string   `json:"contact_info" form:"contact_info"`
	ImageURL    string   `json:"image_url" form:"image_url"`
	Tags        []string `json:"tags" form:"tags"`
}

// ListItemsResponse is a page of items.
type ListItemsResponse struct {
	Items      []domain.Item `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// MatchesResponse lists ranked candidates.
type MatchesResponse struct {
	Matches []services.Match `json:"matches"`
}

// ModerationRequest sets an item's moderation status.
type ModerationRequest struct {
	Status string `json:"status" binding:"required" example:"approved"`
}

// CreateItem godoc
// @ID          createItem
// @Summary     Post a lost or found item
// @Description Accepts JSON or multipart/form-data with an optional "image" file. Honours Idempotency-Key.
// @Tags        Items
// @Accept      json,mpfd
// @Produce     json
// @Param       Idempotency-Key header string false "Retry key"
// @Param       body body handlers.CreateItemRequest false "Item (JSON form)"
// @Success     201 {object} domain.Item
// @Success     200 {object} domain.Item "Replayed"
// @Failure     400 {object} handlers.ErrorResponse
// @Failure     413 {object} handlers.ErrorResponse
// @Router      /items [post]
func (h *Handlers) CreateItem(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	if rid, replay := middleware.ReplayResourceID(c); replay {
		if it, err := h.svc.Items.Get(ctx, rid); err == nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, it)
			return
		}
	}

	var (
		req   CreateItemRequest
		image []byte
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid form")
			return
		}
		var status int
		image, status = h.formImage(c)
		if status != 0 {
			return
		}
		req.Tags = splitTags(req.Tags)
	} else if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	it, err := h.svc.Items.Create(ctx, services.CreateItemInput{
		TenantID:    middleware.TenantID(c),
		OwnerID:     uid,
		Status:      domain.ItemStatus(strings.TrimSpace(req.Status)),
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ContactInfo: req.ContactInfo,
		ImageURL:    req.ImageURL,
		Tags:        req.Tags,
		Image:       image,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	h.recordIdempotency(c, it.ID, http.StatusCreated)
	ok(c, http.StatusCreated, it)
}

// GetItem godoc
// @ID       getItem
// @Summary  Get an item
// @Tags     Items
// @Produce  json
// @Param    id path string true "Item ID"
// @Success  200 {object} domain.Item
// @Failure  404 {object} handlers.ErrorResponse
// @Router   /items/{id} [get]
func (h *Handlers) GetItem(c *gin.Context) {
	it, err := h.svc.Items.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	if !visible(c, it) {
		serviceError(c, services.ErrItemNotFound)
		return
	}
	ok(c, http.StatusOK, it)
}

// ListItems godoc
// @ID       listItems
// @Summary  Browse published items of the caller's campus
// @Tags     Items
// @Produce  json
// @Param    status    query string false "Lost|Found|PendingHandover|Recovered"
// @Param    category  query string false "Category"
// @Param    page      query int    false "Page" minimum(1) default(1)
// @Param    page_size query int    false "Page size" minimum(1) maximum(100) default(20)
// @Success  200 {object} handlers.ListItemsResponse
// @Failure  400 {object} handlers.ErrorResponse
// @Router   /items [get]
func (h *Handlers) ListItems(c *gin.Context) {
	page, pageSize := pageParams(c)
	items, total, err := h.svc.Items.ListByTenant(c.Request.Context(),
		middleware.TenantID(c),
		domain.ItemStatus(c.Query("status")),
		strings.TrimSpace(c.Query("category")),
		page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListItemsResponse{Items: items, Pagination: pagination(page, pageSize, total)})
}

// ListMyItems godoc
// @ID       listMyItems
// @Summary  The caller's own posts, any moderation state
// @Tags     Items
// @Produce  json
// @Success  200 {object} handlers.ListItemsResponse
// @Router   /items/mine [get]
func (h *Handlers) ListMyItems(c *gin.Context) {
	page, pageSize := pageParams(c)
	items, total, err := h.svc.Items.ListMine(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListItemsResponse{Items: items, Pagination: pagination(page, pageSize, total)})
}

// FindMatches godoc
// @ID       findMatches
// @Summary  Rank found items against one of the caller's lost items
// @Tags     Matching
// @Produce  json
// @Param    id        path  string true  "Lost item ID"
// @Param    threshold query number false "Minimum score (0..1)"
// @Param    limit     query int    false "Maximum results"
// @Success  200 {object} handlers.MatchesResponse
// @Failure  400 {object} handlers.ErrorResponse
// @Failure  403 {object} handlers.ErrorResponse
// @Failure  404 {object} handlers.ErrorResponse
// @Router   /items/{id}/matches [get]
func (h *Handlers) FindMatches(c *gin.Context) {
	threshold, okT := floatQuery(c, "threshold", h.opts.MatchThreshold)
	if !okT {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "threshold must be a number")
		return
	}
	ms, err := h.svc.Matches.FindMatches(c.Request.Context(), middleware.UserID(c), c.Param("id"), services.MatchOptions{
		Threshold:   threshold,
		Limit:       intQuery(c, "limit", h.opts.MatchLimit),
		TextWeight:  h.opts.MatchTextWeight,
		ImageWeight: h.opts.MatchImageWeight,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, MatchesResponse{Matches: ms})
}

// SearchByImage godoc
// @ID       searchByImage
// @Summary  Find found items that look like an uploaded photo
// @Tags     Matching
// @Accept   mpfd
// @Produce  json
// @Param    image     formData file   true  "Photo"
// @Param    threshold query    number false "Minimum similarity (0..1)"
// @Param    limit     query    int    false "Maximum results"
// @Success  200 {object} handlers.MatchesResponse
// @Failure  400 {object} handlers.ErrorResponse
// @Failure  413 {object} handlers.ErrorResponse
// @Router   /items/image-search [post]
func (h *Handlers) SearchByImage(c *gin.Context) {
	threshold, okT := floatQuery(c, "threshold", h.opts.ImageSearchThreshold)
	if !okT {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "threshold must be a number")
		return
	}
	image, status := h.formImage(c)
	if status != 0 {
		return
	}
	ms, err := h.svc.Matches.SearchByImage(c.Request.Context(), middleware.TenantID(c), image, threshold,
		intQuery(c, "limit", h.opts.ImageSearchLimit))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, MatchesResponse{Matches: ms})
}

// ModerateItem godoc
// @ID       moderateItem
// @Summary  Approve, reject or re-queue an item (admin)
// @Tags     Admin
// @Accept   json
// @Produce  json
// @Param    id   path string true "Item ID"
// @Param    body body handlers.ModerationRequest true "Target status"
// @Success  200 {object} domain.Item
// @Failure  400 {object} handlers.ErrorResponse
// @Failure  403 {object} handlers.ErrorResponse
// @Failure  409 {object} handlers.ErrorResponse
// @Router   /admin/items/{id}/moderation [post]
func (h *Handlers) ModerateItem(c *gin.Context) {
	var req ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	it, err := h.svc.Items.Moderate(c.Request.Context(), middleware.TenantID(c), c.Param("id"), domain.ModerationStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// formImage reads the "image" multipart file. A missing file yields nil.
// On failure it writes the response and returns its status.
func (h *Handlers) formImage(c *gin.Context) ([]byte, int) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, 0
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "upload too large")
			return nil, http.StatusRequestEntityTooLarge
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid multipart body")
		return nil, http.StatusBadRequest
	}
	if fh.Size > h.opts.MaxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "image too large")
		return nil, http.StatusRequestEntityTooLarge
	}
	data, err := readUpload(fh, h.opts.MaxUploadBytes)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image")
		return nil, http.StatusBadRequest
	}
	return data, 0
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

func (h *Handlers) recordIdempotency(c *gin.Context, resourceID string, status int) {
	key, scope, present := middleware.IdempotencyKey(c)
	if !present || h.svc.Idempotency == nil {
		return
	}
	if err := h.svc.Idempotency.Record(c.Request.Context(), middleware.UserID(c), scope, key, resourceID, status); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency record failed")
	}
}

// visible hides other campuses' items, and unpublished items from everyone
// except their owner and admins.
func visible(c *gin.Context, it *domain.Item) bool {
	if it.TenantID != middleware.TenantID(c) {
		return false
	}
	switch it.ModerationStatus {
	case domain.ModerationPending, domain.ModerationRejected:
		return it.OwnerID == middleware.UserID(c) || middleware.Role(c) == middleware.RoleAdmin
	}
	return true
}

// splitTags accepts both repeated "tags" fields and one comma-separated value.
func splitTags(in []string) []string {
	var out []string
	for _, v := range in {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func floatQuery(c *gin.Context, name string, def float64) (float64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	return f, err == nil
}

func intQuery(c *gin.Context, name string, def int) int {
	n := utils.AtoiDefault(c.Query(name), def)
	if n < 1 {
		return def
	}
	return n
}
