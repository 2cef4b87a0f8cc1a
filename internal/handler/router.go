package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/handler/chat"
	"github.com/zhouzirui/command-agent/backend/internal/handler/metrics"
	"github.com/zhouzirui/command-agent/backend/internal/handler/persona"
	"github.com/zhouzirui/command-agent/backend/internal/handler/speech"
	"github.com/zhouzirui/command-agent/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/command-agent/backend/internal/middleware"
	personaModel "github.com/zhouzirui/command-agent/backend/internal/model/persona"
	chatService "github.com/zhouzirui/command-agent/backend/internal/service/chat"
	metricsService "github.com/zhouzirui/command-agent/backend/internal/service/metrics"
	speechService "github.com/zhouzirui/command-agent/backend/internal/service/speech"
	"github.com/zhouzirui/command-agent/backend/pkg/utils"
)

// Dependencies 是路由需要的服务集合，Speaker 与 Sampler 可为空。
type Dependencies struct {
	Personas    personaModel.Store
	Chat        *chatService.Service
	Speaker     speechService.Speaker
	Sampler     *metricsService.Sampler
	CORSOrigins []string
	RateLimit   speech.RateLimit
	Logger      logrus.FieldLogger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.CORSOrigins))

	validate := validator.New(validator.WithRequiredStructEnabled())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status": "online",
			"system": "command agent",
		})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		chat.New(deps.Chat, validate, deps.Logger).RegisterRoutes(api)
		stream.New(deps.Chat, 0, deps.Logger).RegisterRoutes(api)
		speech.NewWebSocketHandler(deps.Chat, deps.RateLimit, deps.Logger).RegisterWebSocketRoutes(api)

		if deps.Speaker != nil {
			speech.New(deps.Speaker, deps.Chat, deps.Personas, validate, deps.Logger).RegisterRoutes(api)
		} else {
			api.Post("/speech/speak", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "speech output unavailable")
			})
		}

		if deps.Sampler != nil {
			metrics.New(deps.Sampler, 0).RegisterRoutes(api)
		}
	})

	return r
}
