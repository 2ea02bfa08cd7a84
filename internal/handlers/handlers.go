package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagehive/internal/apperr"
	"imagehive/internal/config"
	"imagehive/internal/middleware"
	"imagehive/internal/models"
	"imagehive/internal/queue"
	"imagehive/internal/repository"
	"imagehive/internal/results"
	"imagehive/internal/service"
	"imagehive/internal/storage"
)

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	authService   *service.AuthService
	uploadService *service.UploadService
	imageService  *service.ImageService
	db            *pgxpool.Pool
	cache         *redis.Client
	users         *repository.UserRepository
	tags          *repository.TagRepository
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	tagRepo := repository.NewTagRepository(db)
	imageRepo := repository.NewImageRepository(db)
	producer := queue.NewProducer(cache, cfg.Queue.Stream)
	index := results.NewIndex(cache)

	auth := service.NewAuthService(userRepo, cfg, log)
	upload := service.NewUploadService(store, producer, log)
	images := service.NewImageService(imageRepo, store, index, log)

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		authService:   auth,
		uploadService: upload,
		imageService:  images,
		db:            db,
		cache:         cache,
		users:         userRepo,
		tags:          tagRepo,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg, h.users))
		protected.GET("/me", h.Me)
	}

	tags := v1.Group("/tags")
	tags.Use(middleware.Auth(h.cfg, h.users))
	tags.POST("", h.CreateTag)
	tags.GET("", h.ListTags)

	images := v1.Group("/images")
	images.Use(middleware.Auth(h.cfg, h.users))
	images.GET("", h.ListImages)
	images.POST("", h.UploadImage)
	images.GET("/result", h.UploadResults)
	images.PATCH("/:id", h.UpdateImage)
	images.DELETE("/:id", h.DeleteImage)
}

func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get(middleware.CurrentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := userVal.(models.User)
	return user, ok
}

// respondError maps the error taxonomy onto HTTP statuses with stable
// codes in the body.
func respondError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error":   string(apperr.KindOf(err)),
		"message": apperr.MessageOf(err),
	})
}
