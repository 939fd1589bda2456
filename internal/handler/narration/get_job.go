package narration

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fable/internal/service"
)

// GetJobRequest 查询任务请求
type GetJobRequest struct {
	JobID string `uri:"job_id" binding:"required"` // 任务ID（必填）
}

// GetJob 查询旁白任务
// @Summary      查询任务
// @Description  根据任务ID查询旁白合成任务的状态与结果。
// @Tags         旁白管理
// @Produce      json
// @Param        job_id  path      string  true  "任务ID"
// @Success      200     {object}  map[string]interface{}  "成功响应"
// @Failure      404     {object}  ErrorResponse  "任务不存在"
// @Router       /api/v1/narrations/{job_id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	var req GetJobRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid job_id",
			Detail:  err.Error(),
		})
		return
	}

	job, err := h.narrationService.GetJob(c.Request.Context(), req.JobID)
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
