package narration

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fable/internal/service"
)

// GetPageNarrationRequest 查询页面旁白请求
type GetPageNarrationRequest struct {
	BookID string `uri:"book_id" binding:"required"` // 书籍ID（必填）
	PageID string `uri:"page_id" binding:"required"` // 页面ID（必填）
}

// GetPageNarration 查询页面最新旁白任务
// @Summary      查询页面旁白
// @Description  查询指定页面最新一次旁白合成任务，供阅读端复用已有结果。
// @Tags         旁白管理
// @Produce      json
// @Param        book_id  path      string  true  "书籍ID"
// @Param        page_id  path      string  true  "页面ID"
// @Success      200      {object}  map[string]interface{}  "成功响应"
// @Failure      404      {object}  ErrorResponse  "页面无旁白任务"
// @Router       /api/v1/books/{book_id}/pages/{page_id}/narration [get]
func (h *Handler) GetPageNarration(c *gin.Context) {
	var req GetPageNarrationRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid book_id or page_id",
			Detail:  err.Error(),
		})
		return
	}

	job, err := h.narrationService.GetLatestForPage(c.Request.Context(), req.BookID, req.PageID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    40401,
				Message: "narration job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    toJobInfo(job),
	})
}
