package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"github.com/smallbiznis/agentdesk/internal/channel"
	channeldomain "github.com/smallbiznis/agentdesk/internal/channel/domain"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/cost"
	costdomain "github.com/smallbiznis/agentdesk/internal/cost/domain"
	"github.com/smallbiznis/agentdesk/internal/credit"
	creditdomain "github.com/smallbiznis/agentdesk/internal/credit/domain"
	"github.com/smallbiznis/agentdesk/internal/lead"
	leaddomain "github.com/smallbiznis/agentdesk/internal/lead/domain"
	"github.com/smallbiznis/agentdesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/agentdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/agentdesk/internal/observability/tracing"
	"github.com/smallbiznis/agentdesk/internal/organization"
	organizationdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/payment"
	paymentdomain "github.com/smallbiznis/agentdesk/internal/payment/domain"
	"github.com/smallbiznis/agentdesk/internal/ratelimit"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	realtime.Module,
	ratelimit.Module,
	organization.Module,
	credit.Module,
	channel.Module,
	lead.Module,
	cost.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !cfg.GinDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authzSvc        authorization.Service
	organizationSvc organizationdomain.Service
	creditSvc       creditdomain.Service
	channelSvc      channeldomain.Service
	leadSvc         leaddomain.Service
	costSvc         costdomain.Service
	paymentSvc      paymentdomain.Service
	hub             *realtime.Hub
	limiter         *ratelimit.OrgLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	OrganizationSvc organizationdomain.Service
	CreditSvc       creditdomain.Service
	ChannelSvc      channeldomain.Service
	LeadSvc         leaddomain.Service
	CostSvc         costdomain.Service
	PaymentSvc      paymentdomain.Service
	Hub             *realtime.Hub         `optional:"true"`
	Limiter         *ratelimit.OrgLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		organizationSvc: p.OrganizationSvc,
		creditSvc:       p.CreditSvc,
		channelSvc:      p.ChannelSvc,
		leadSvc:         p.LeadSvc,
		costSvc:         p.CostSvc,
		paymentSvc:      p.PaymentSvc,
		hub:             p.Hub,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")
	api.Use(s.ActorScope())

	// -------- Organisations --------
	api.POST("/organisation", s.CreateOrganization)
	api.GET("/organisation", s.ListOrganizations)
	api.GET("/organisation/:org", s.GetOrganization)
	api.PATCH("/organisation/:org", s.UpdateOrganization)
	api.DELETE("/organisation/:org", s.DeleteOrganization)
	api.POST("/organisation/:org/disable", s.DisableOrganization)
	api.POST("/organisation/:org/enable", s.EnableOrganization)

	// -------- Credits --------
	api.GET("/organisation/:org/credits", s.GetCredits)
	api.PATCH("/organisation/:org/credits", s.OrgRateLimit(), s.UpdateCredits)
	api.GET("/organisation/:org/credits/history", s.ListCreditHistory)

	// -------- Channels --------
	api.GET("/organisation/:org/channels", s.GetAvailableChannels)
	api.POST("/organisation/:org/calls/:region/start", s.OrgRateLimit(), s.StartCall)
	api.POST("/organisation/:org/calls/:region/end", s.OrgRateLimit(), s.EndCall)

	// -------- Leads --------
	api.GET("/leads/priority", s.ListGlobalPriorityLeads)
	api.GET("/organisation/:org/leads/priority", s.ListPriorityLeads)
	api.POST("/organisation/:org/leads", s.CreateLead)
	api.GET("/organisation/:org/leads/:id", s.GetLead)
	api.PATCH("/organisation/:org/leads/:id", s.UpdateLead)
	api.DELETE("/organisation/:org/leads/:id", s.DeleteLead)
	api.POST("/organisation/:org/leads/:id/follow-up", s.ScheduleLeadFollowUp)
	api.POST("/organisation/:org/leads/:id/in-process", s.SetLeadInProcess)

	// -------- Costs --------
	api.POST("/organisation/:org/costs", s.CreateCost)
	api.GET("/organisation/:org/costs", s.ListCosts)
	api.DELETE("/organisation/:org/costs/:id", s.DeleteCost)

	// -------- Payments --------
	api.POST("/organisation/:org/payments", s.OrgRateLimit(), s.RecordPayment)
	api.GET("/organisation/:org/payments", s.ListPayments)

	// -------- Realtime --------
	api.GET("/organisation/:org/events", s.StreamOrganizationEvents)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
