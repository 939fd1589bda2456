package narration

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fable/internal/service"
)

// GetTimelineRequest 查询时间轴请求
type GetTimelineRequest struct {
	JobID string `uri:"job_id" binding:"required"` // 任务ID（必填）
}

// GetTimeline 查询旁白时间轴
// @Summary      查询时间轴
// @Description  返回任务的逐词时间轴，供阅读端做逐词高亮。偏移为原文的字符偏移。
// @Tags         旁白管理
// @Produce      json
// @Param        job_id  path      string  true  "任务ID"
// @Success      200     {object}  map[string]interface{}  "成功响应"
// @Failure      404     {object}  ErrorResponse  "任务不存在或尚无时间轴"
// @Router       /api/v1/narrations/{job_id}/timeline [get]
func (h *Handler) GetTimeline(c *gin.Context) {
	var req GetTimelineRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid job_id",
			Detail:  err.Error(),
		})
		return
	}

	timeline, err := h.narrationService.GetTimeline(c.Request.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    40401,
				Message: "timeline not found",
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
		"data":    timeline,
	})
}
