package narration

import (
	"fable/internal/service"
)

// Handler 旁白任务处理器
type Handler struct {
	narrationService *service.NarrationService
}

// NewHandler 创建旁白任务处理器
func NewHandler(narrationService *service.NarrationService) *Handler {
	return &Handler{narrationService: narrationService}
}
