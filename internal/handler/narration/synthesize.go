package narration

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fable/internal/pkg/speech"
	"fable/internal/service"
)

// SynthesizeRequest 旁白合成请求
type SynthesizeRequest struct {
	BookID       string  `json:"book_id" binding:"required"` // 书籍ID（必填）
	PageID       string  `json:"page_id" binding:"required"` // 页面ID（必填）
	Text         string  `json:"text" binding:"required"`    // 原文（必填）
	Provider     string  `json:"provider"`                   // 供应商名称（可选）
	VoiceID      string  `json:"voice_id"`                   // 音色标识（可选）
	SpeedRatio   float64 `json:"speed_ratio"`                // 语速比例（可选，默认1.0）
	LanguageHint string  `json:"language_hint"`              // 语言提示（可选）
}

// SynthesizeResponseData 旁白合成响应数据
type SynthesizeResponseData struct {
	Job      JobInfo          `json:"job"`      // 任务信息
	Timeline *speech.Timeline `json:"timeline"` // 逐词时间轴
}

// Synthesize 为一页原文合成旁白音频与逐词时间轴
// @Summary      合成旁白
// @Description  对一页原文执行完整合成：分块、TTS调用、对齐、拼接、归一化，返回音频URL与逐词时间轴。时间轴精度由 accuracy 字段告知。
// @Tags         旁白管理
// @Accept       json
// @Produce      json
// @Param        request  body      SynthesizeRequest  true  "合成请求"
// @Success      200      {object}  map[string]interface{}  "成功响应"
// @Failure      400      {object}  ErrorResponse  "请求参数错误或原文为空"
// @Failure      409      {object}  ErrorResponse  "同一页面的任务正在进行"
// @Failure      500      {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/narrations [post]
func (h *Handler) Synthesize(c *gin.Context) {
	var req SynthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	job, err := h.narrationService.Synthesize(ctx, service.SynthesizeParams{
		BookID: req.BookID,
		PageID: req.PageID,
		Text:   req.Text,
		Voice: speech.VoiceConfig{
			Provider:     req.Provider,
			VoiceID:      req.VoiceID,
			SpeedRatio:   req.SpeedRatio,
			LanguageHint: req.LanguageHint,
		},
	})
	if err != nil {
		code := http.StatusInternalServerError
		errorCode := 50001

		switch {
		case errors.Is(err, speech.ErrInvalidInput):
			code = http.StatusBadRequest
			errorCode = 40002
		case errors.Is(err, service.ErrJobInProgress):
			code = http.StatusConflict
			errorCode = 40901
		case errors.Is(err, speech.ErrChunkSynthesis):
			errorCode = 50002
		}

		c.JSON(code, ErrorResponse{
			Code:    errorCode,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "narration synthesized",
		"data": SynthesizeResponseData{
			Job:      toJobInfo(job),
			Timeline: job.Timeline,
		},
	})
}
