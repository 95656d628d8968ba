package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type PageHandler struct {
	logger *slog.Logger
}

func NewPageHandler(logger *slog.Logger) *PageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageHandler{logger: logger}
}

func (h *PageHandler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, "index.html")
}

func (h *PageHandler) Help(c *gin.Context) {
	h.render(c, http.StatusOK, "help.html")
}

func (h *PageHandler) Contact(c *gin.Context) {
	h.render(c, http.StatusOK, "contact.html")
}

// NotFound answers unmatched routes: JSON under /api/, the 404 page elsewhere.
func (h *PageHandler) NotFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	h.render(c, http.StatusNotFound, "404.html")
}

func (h *PageHandler) render(c *gin.Context, status int, page string) {
	c.HTML(status, page, nil)

	if len(c.Errors) == 0 {
		return
	}
	h.logger.Error("failed to render page", "page", page, "error", c.Errors.Last().Error())
	if !c.Writer.Written() {
		c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
