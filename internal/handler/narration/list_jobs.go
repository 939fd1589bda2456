package narration

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ListJobsRequest 查询书籍任务列表请求
type ListJobsRequest struct {
	BookID string `uri:"book_id" binding:"required"` // 书籍ID（必填）
}

// ListJobs 查询书籍下的旁白任务
// @Summary      任务列表
// @Description  按创建时间倒序返回书籍下的旁白合成任务。
// @Tags         旁白管理
// @Produce      json
// @Param        book_id  path      string  true   "书籍ID"
// @Param        limit    query     int     false  "返回数量上限（默认50）"
// @Success      200      {object}  map[string]interface{}  "成功响应"
// @Router       /api/v1/books/{book_id}/narrations [get]
func (h *Handler) ListJobs(c *gin.Context) {
	var req ListJobsRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid book_id",
			Detail:  err.Error(),
		})
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	jobs, err := h.narrationService.ListByBook(c.Request.Context(), req.BookID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"jobs":  toJobInfoList(jobs),
			"total": len(jobs),
		},
	})
}
