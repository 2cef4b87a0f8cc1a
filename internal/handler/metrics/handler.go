package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	metricsService "github.com/zhouzirui/command-agent/backend/internal/service/metrics"
	"github.com/zhouzirui/command-agent/backend/pkg/utils"
)

const defaultInterval = 2 * time.Second

// Handler 提供模拟的系统负载读数
type Handler struct {
	sampler  *metricsService.Sampler
	interval time.Duration
}

// New 创建指标处理器，interval 非正数时使用 2s
func New(sampler *metricsService.Sampler, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Handler{sampler: sampler, interval: interval}
}

// RegisterRoutes 注册指标路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/metrics", h.handleSnapshot)
	r.Get("/metrics/stream", h.handleStream)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sampler.Sample())
}

// handleStream 按固定间隔推送读数直到客户端断开
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEChunk(w, flusher, h.sampler.Sample())

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			utils.SendSSEChunk(w, flusher, h.sampler.Sample())
		}
	}
}
