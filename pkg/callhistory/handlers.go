package callhistory

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

// RegisterRoutes mounts the read/delete history API. Creation is not exposed
// over HTTP: records are written by the relay through the Recorder hooks.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/call")
	api.GET("/history", s.handleList)
	api.DELETE("/:id", s.handleDelete)
}

func (s *Service) handleList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	recs, err := s.List(limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs})
}

func (s *Service) handleDelete(c *gin.Context) {
	if err := s.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call deleted"})
}

func writeError(c *gin.Context, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
