package server

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

const (
	tokenCookie = "blog_token"
	viewerKey   = "viewer"
	loginPath   = "/auth/login/"
)

func viewer(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(viewerKey).(*models.User)
	return u
}

// identify кладет в Locals пользователя из cookie с токеном.
// Битый или устаревший токен - просто гость.
func (s *Server) identify(c *fiber.Ctx) error {
	token := c.Cookies(tokenCookie)
	if token == "" {
		return c.Next()
	}
	userID, err := s.auth.ValidateToken(token)
	if err != nil {
		s.clearSession(c)
		return c.Next()
	}
	user, err := s.svc.User(c.UserContext(), userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.clearSession(c)
	case err != nil:
		return err
	default:
		c.Locals(viewerKey, user)
	}
	return c.Next()
}

// requireAuth отправляет гостя на страницу входа с возвратом на исходный адрес.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	if viewer(c) != nil {
		return c.Next()
	}
	return c.Redirect(loginURL(c.OriginalURL()))
}

func loginURL(next string) string {
	return loginPath + "?next=" + strings.ReplaceAll(url.QueryEscape(next), "%2F", "/")
}

// safeNext допускает только локальные пути.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func (s *Server) startSession(c *fiber.Ctx, user *models.User) error {
	token, err := s.auth.GenerateToken(user.ID)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.auth.TTL()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

func (s *Server) clearSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// accessLog пишет одну запись на запрос. Ошибку цепочки обрабатывает сам,
// чтобы в журнал попал итоговый статус.
func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := s.errorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	s.log.WithFields(logrus.Fields{
		"method":  c.Method(),
		"path":    c.Path(),
		"status":  c.Response().StatusCode(),
		"latency": time.Since(start).String(),
	}).Info("request")
	return nil
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.As(err, &fe):
		code = fe.Code
	}

	if code >= fiber.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("ошибка обработки запроса")
	}

	data := &viewData{Title: "Ошибка", Status: code}
	if code == fiber.StatusNotFound {
		data.Title = "Страница не найдена"
	}
	if rerr := s.render(c, code, "error.page.html", data); rerr != nil {
		return c.Status(code).SendString(fiber.ErrInternalServerError.Message)
	}
	return nil
}
