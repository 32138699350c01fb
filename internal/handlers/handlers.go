package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kompas/api/internal/config"
	"kompas/api/internal/middleware"
	"kompas/api/internal/presence"
	"kompas/api/internal/realtime"
	"kompas/api/internal/repository"
	"kompas/api/internal/service"
	"kompas/api/internal/storage"
)

type HandlerSet struct {
	log             zerolog.Logger
	cfg             *config.AppConfig
	db              *pgxpool.Pool
	cache           *redis.Client
	store           *storage.ObjectStore
	feed            realtime.Feed
	users           *repository.UserRepository
	sessions        *repository.SessionRepository
	groups          *repository.GroupRepository
	presenceStore   *presence.Store
	authService     *service.AuthService
	groupService    *service.GroupService
	presenceService *service.PresenceService
	eventService    *service.EventService
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	eventRepo := repository.NewEventRepository(db)
	inviteRepo := repository.NewInviteRepository(cache)
	presenceStore := presence.NewStore(cache, log)
	publisher := realtime.NewRedisPublisher(cache)

	auth := service.NewAuthService(userRepo, sessionRepo, cfg, log)
	groups := service.NewGroupService(groupRepo, userRepo, inviteRepo, presenceStore, publisher, cfg, log)
	presenceSvc := service.NewPresenceService(presenceStore, groupRepo, log)
	events := service.NewEventService(eventRepo, groupRepo, store, log)

	return HandlerSet{
		log:             log,
		cfg:             cfg,
		db:              db,
		cache:           cache,
		store:           store,
		feed:            realtime.NewRedisFeed(cache),
		users:           userRepo,
		sessions:        sessionRepo,
		groups:          groupRepo,
		presenceStore:   presenceStore,
		authService:     auth,
		groupService:    groups,
		presenceService: presenceSvc,
		eventService:    events,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg, h.users, h.sessions))
		protected.GET("/me", h.Me)
		protected.PATCH("/me", h.UpdateMe)
		protected.POST("/avatar", h.UploadAvatar)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/sessions/:deviceId", h.RevokeSession)
	}

	authed := v1.Group("")
	authed.Use(middleware.Auth(h.cfg, h.users, h.sessions))

	groups := authed.Group("/groups")
	groups.GET("", h.ListGroups)
	groups.POST("", h.CreateGroup)
	groups.GET("/:groupId", h.GetGroup)
	groups.PATCH("/:groupId", h.RenameGroup)
	groups.DELETE("/:groupId", h.DeleteGroup)
	groups.PUT("/:groupId/members/:userId", h.AddMember)
	groups.DELETE("/:groupId/members/:userId", h.RemoveMember)
	groups.POST("/:groupId/invites", h.CreateInvite)
	groups.GET("/:groupId/invites", h.ListInvites)
	groups.GET("/:groupId/presence", h.GroupPresence)
	groups.PUT("/:groupId/presence", h.UpdatePresence)

	authed.POST("/invites/:code/join", h.JoinByCode)

	events := authed.Group("/events")
	events.POST("", h.CreateEvent)
	events.GET("", h.ListEvents)
	events.DELETE("/:eventId", h.DeleteEvent)

	ws := authed.Group("/ws")
	ws.GET("/directory", h.DirectoryStream)
	ws.GET("/groups/:groupId/presence", h.PresenceStream)
}
