package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gomailer/mail-service/internal/crud"
	"github.com/gomailer/mail-service/internal/mail"
	"github.com/gomailer/mail-service/internal/mail/service"
	"github.com/gomailer/mail-service/pkg/logger"
)

const (
	// MaxLimit caps the page size a client may request.
	MaxLimit int64 = 100
	// MaxAttachmentSize bounds a single uploaded attachment.
	MaxAttachmentSize int64 = 10 << 20
)

// RegisterMailRoutes mounts the mail API on rg, typically the /v1/mail group.
func RegisterMailRoutes(rg *gin.RouterGroup, svc *service.Service) {
	h := &mailHandler{svc: svc}
	rg.GET("", h.list)
	rg.POST("", h.create)
	rg.DELETE("", h.purge)
	rg.GET("/stats", h.stats)
	rg.GET("/:id", h.get)
	rg.PATCH("/:id", h.update)
	rg.DELETE("/:id", h.delete)
	rg.POST("/:id/attachments", h.addAttachment)
	rg.GET("/:id/attachments/:name", h.attachment)
}

type mailHandler struct {
	svc *service.Service
}

func (h *mailHandler) list(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *mailHandler) create(c *gin.Context) {
	var req service.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", c.FullPath()+"/"+m.ID.Hex())
	c.JSON(http.StatusCreated, m)
}

func (h *mailHandler) get(c *gin.Context) {
	m, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *mailHandler) update(c *gin.Context) {
	var req service.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *mailHandler) delete(c *gin.Context) {
	if _, err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *mailHandler) purge(c *gin.Context) {
	status := mail.Status(c.Query("status"))
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}
	n, err := h.svc.Purge(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *mailHandler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *mailHandler) addAttachment(c *gin.Context) {
	if !h.svc.AttachmentsEnabled() {
		writeError(c, service.ErrAttachmentsDisabled)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAttachmentSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if fh.Size > MaxAttachmentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	m, err := h.svc.AddAttachment(c.Request.Context(), c.Param("id"), fh.Filename, f, fh.Size, contentType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *mailHandler) attachment(c *gin.Context) {
	u, err := h.svc.AttachmentURL(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, u)
}

func parseQuery(c *gin.Context) (service.Query, error) {
	q := service.Query{
		Status: mail.Status(c.Query("status")),
		To:     c.Query("to"),
		From:   c.Query("from"),
	}
	var err error
	if q.Page, err = intParam(c, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(c, "limit"); err != nil {
		return q, err
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Sort, err = crud.ParseSort(c.Query("sort")); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

// writeError maps service and storage errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, crud.ErrInvalidIdentifier):
		status = http.StatusBadRequest
	case errors.Is(err, crud.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAttachmentsDisabled):
		status = http.StatusNotImplemented
	case errors.Is(err, crud.ErrStorage):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": msg})
}
