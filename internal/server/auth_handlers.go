package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/blog"
	"github.com/ButyrinIA/blog/internal/forms"
)

func (s *Server) signup(c *fiber.Ctx) error {
	data := &viewData{Title: "Зарегистрироваться"}
	if c.Method() != fiber.MethodPost {
		return s.render(c, fiber.StatusOK, "signup.page.html", data)
	}

	in := forms.CredentialsInput{Username: c.FormValue("username"), Password: c.FormValue("password")}
	user, err := s.svc.Register(c.UserContext(), in)
	var verr *blog.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Form = map[string]string{"username": in.Username}
		data.Errors = verr.Fields
		return s.render(c, fiber.StatusOK, "signup.page.html", data)
	case err != nil:
		return err
	}

	if err := s.startSession(c, user); err != nil {
		return err
	}
	return c.Redirect("/")
}

func (s *Server) login(c *fiber.Ctx) error {
	next := safeNext(c.Query("next", c.FormValue("next")))
	data := &viewData{Title: "Войти", Next: next}
	if c.Method() != fiber.MethodPost {
		return s.render(c, fiber.StatusOK, "login.page.html", data)
	}

	username := c.FormValue("username")
	user, err := s.svc.Authenticate(c.UserContext(), username, c.FormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		data.Form = map[string]string{"username": username}
		data.Errors = forms.Errors{}
		data.Errors.Add("password", "Введите правильные имя пользователя и пароль.")
		return s.render(c, fiber.StatusOK, "login.page.html", data)
	}
	if err != nil {
		return err
	}

	if err := s.startSession(c, user); err != nil {
		return err
	}
	s.log.WithField("username", user.Username).Info("вход пользователя")
	if next == "" {
		next = "/"
	}
	return c.Redirect(next)
}

func (s *Server) logout(c *fiber.Ctx) error {
	s.clearSession(c)
	c.Locals(viewerKey, nil)
	return s.render(c, fiber.StatusOK, "logged_out.page.html", &viewData{Title: "Вы вышли из системы"})
}
