// Package server - HTTP-интерфейс блога на fiber: страницы лент, постов,
// подписок и авторизации.
package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/blog"
	"github.com/ButyrinIA/blog/internal/cache"
	"github.com/ButyrinIA/blog/internal/config"
)

type Server struct {
	cfg   *config.Config
	app   *fiber.App
	svc   *blog.Service
	cache *cache.Cache
	auth  *auth.Manager
	log   logrus.FieldLogger
	views *views
}

func New(cfg *config.Config, svc *blog.Service, homeCache *cache.Cache, authMgr *auth.Manager, log logrus.FieldLogger) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		cache: homeCache,
		auth:  authMgr,
		log:   log,
		views: mustLoadViews(),
	}

	s.app = fiber.New(fiber.Config{
		// строки из запроса уходят ключами в кэш и в шаблоны
		Immutable:             true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})
	s.app.Use(s.accessLog)
	s.app.Use(recover.New())
	s.app.Use(s.identify)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", s.home)
	s.app.Get("/group/:slug/", s.groupPosts)
	s.app.Get("/profile/:username/", s.profile)
	s.app.Get("/posts/:id/", s.postDetail)

	s.app.Get("/create/", s.requireAuth, s.postCreate)
	s.app.Post("/create/", s.requireAuth, s.postCreate)
	s.app.Get("/posts/:id/edit/", s.requireAuth, s.postEdit)
	s.app.Post("/posts/:id/edit/", s.requireAuth, s.postEdit)
	s.app.Post("/posts/:id/delete/", s.requireAuth, s.postDelete)
	s.app.Get("/posts/:id/comment/", s.requireAuth, s.addComment)
	s.app.Post("/posts/:id/comment/", s.requireAuth, s.addComment)

	s.app.Get("/follow/", s.requireAuth, s.followIndex)
	for _, method := range []string{fiber.MethodGet, fiber.MethodPost} {
		s.app.Add(method, "/profile/:username/follow/", s.requireAuth, s.profileFollow)
		s.app.Add(method, "/profile/:username/unfollow/", s.requireAuth, s.profileUnfollow)
		s.app.Add(method, "/auth/logout/", s.logout)
	}

	s.app.Get("/auth/signup/", s.signup)
	s.app.Post("/auth/signup/", s.signup)
	s.app.Get("/auth/login/", s.login)
	s.app.Post("/auth/login/", s.login)
}

func (s *Server) Run() error {
	s.log.WithField("port", s.cfg.Server.Port).Info("запуск сервера")
	return s.app.Listen(":" + s.cfg.Server.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
