package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ButyrinIA/blog/internal/blog"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/paginator"
)

//go:embed templates/*.html
var templateFS embed.FS

var functions = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006, 15:04")
	},
	"truncate": truncate,
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type postView struct {
	*models.Post
	Author *models.User
	Group  *models.Group
}

type commentView struct {
	*models.Comment
	Author *models.User
}

// viewData - общие данные всех страниц, каждая берет свои поля.
type viewData struct {
	Title  string
	Viewer *models.User
	Status int

	Posts    []postView
	Page     paginator.Page
	PageURL  string
	Fragment template.HTML

	Group     *models.Group
	Author    *models.User
	Following bool
	Stats     blog.FollowStats

	Post     *postView
	Comments []commentView
	CanEdit  bool

	Groups []*models.Group
	Form   map[string]string
	Errors forms.Errors
	IsEdit bool
	Action string
	Next   string
}

type views struct {
	pages map[string]*template.Template
}

func mustLoadViews() *views {
	v, err := loadViews(templateFS)
	if err != nil {
		panic(err)
	}
	return v
}

func loadViews(fsys fs.FS) (*views, error) {
	pages, err := fs.Glob(fsys, "templates/*.page.html")
	if err != nil {
		return nil, err
	}
	v := &views{pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		name := path.Base(page)
		ts, err := template.New(name).Funcs(functions).ParseFS(fsys,
			"templates/base.layout.html",
			"templates/*.partial.html",
			page,
		)
		if err != nil {
			return nil, fmt.Errorf("шаблон %s: %w", name, err)
		}
		v.pages[name] = ts
	}
	return v, nil
}

func (s *Server) render(c *fiber.Ctx, status int, page string, data *viewData) error {
	ts, ok := s.views.pages[page]
	if !ok {
		return fmt.Errorf("шаблон %s не найден", page)
	}
	if data.Viewer == nil {
		data.Viewer = viewer(c)
	}

	buf := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("рендер %s: %w", page, err)
	}
	c.Status(status)
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// renderFeed рендерит только список постов с пагинацией, без шапки страницы.
func (s *Server) renderFeed(data *viewData) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := s.views.pages["index.page.html"].ExecuteTemplate(buf, "feed", data); err != nil {
		return nil, fmt.Errorf("рендер ленты: %w", err)
	}
	return buf.Bytes(), nil
}
