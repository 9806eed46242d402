package server

import (
	"errors"
	"html/template"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ButyrinIA/blog/internal/blog"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
)

func profileURL(username string) string { return "/profile/" + username + "/" }

func postURL(id string) string { return "/posts/" + id + "/" }

// homeCacheKey нормализует номер страницы, чтобы "?page=abc" и "/" делили запись.
func homeCacheKey(raw string) string {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		n = 1
	}
	return "/?page=" + strconv.Itoa(n)
}

// home - главная лента. Список постов кэшируется целиком на TTL кэша,
// новые посты появляются только после истечения записи.
func (s *Server) home(c *fiber.Ctx) error {
	raw := c.Query("page")
	fragment, _, err := s.cache.GetOrCompute(homeCacheKey(raw), func() ([]byte, error) {
		feed, err := s.svc.HomeFeed(c.UserContext(), raw)
		if err != nil {
			return nil, err
		}
		posts, err := newLoaders(s.svc).posts(c.UserContext(), feed.Posts)
		if err != nil {
			return nil, err
		}
		return s.renderFeed(&viewData{Posts: posts, Page: feed.Page, PageURL: "/"})
	})
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "index.page.html", &viewData{
		Title:    "Последние обновления на сайте",
		Fragment: template.HTML(fragment),
	})
}

func (s *Server) groupPosts(c *fiber.Ctx) error {
	group, feed, err := s.svc.GroupFeed(c.UserContext(), c.Params("slug"), c.Query("page"))
	if err != nil {
		return err
	}
	posts, err := newLoaders(s.svc).posts(c.UserContext(), feed.Posts)
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "group.page.html", &viewData{
		Title:   "Записи сообщества " + group.Title,
		Group:   group,
		Posts:   posts,
		Page:    feed.Page,
		PageURL: "/group/" + group.Slug + "/",
	})
}

func (s *Server) profile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	author, feed, err := s.svc.ProfileFeed(ctx, c.Params("username"), c.Query("page"))
	if err != nil {
		return err
	}
	posts, err := newLoaders(s.svc).posts(ctx, feed.Posts)
	if err != nil {
		return err
	}
	stats, err := s.svc.FollowStats(ctx, author.ID)
	if err != nil {
		return err
	}

	data := &viewData{
		Title:   "Профайл пользователя " + author.Username,
		Author:  author,
		Stats:   stats,
		Posts:   posts,
		Page:    feed.Page,
		PageURL: profileURL(author.Username),
	}
	if v := viewer(c); v != nil {
		if data.Following, err = s.svc.IsFollowing(ctx, v.ID, author.ID); err != nil {
			return err
		}
	}
	return s.render(c, fiber.StatusOK, "profile.page.html", data)
}

func (s *Server) postDetail(c *fiber.Ctx) error {
	ctx := c.UserContext()
	post, comments, err := s.svc.PostDetail(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	l := newLoaders(s.svc)
	pv, err := l.post(ctx, post)
	if err != nil {
		return err
	}
	cvs, err := l.comments(ctx, comments)
	if err != nil {
		return err
	}

	v := viewer(c)
	return s.render(c, fiber.StatusOK, "post_detail.page.html", &viewData{
		Title:    "Пост " + truncate(post.Text, 30),
		Post:     pv,
		Comments: cvs,
		CanEdit:  v != nil && v.ID == post.AuthorID,
	})
}

func postInput(c *fiber.Ctx) forms.PostInput {
	return forms.PostInput{
		Text:      c.FormValue("text"),
		GroupSlug: c.FormValue("group"),
		Image:     c.FormValue("image"),
	}
}

func postForm(in forms.PostInput) map[string]string {
	return map[string]string{"text": in.Text, "group": in.GroupSlug, "image": in.Image}
}

func (s *Server) renderPostForm(c *fiber.Ctx, data *viewData) error {
	groups, err := s.svc.Groups(c.UserContext())
	if err != nil {
		return err
	}
	data.Groups = groups
	data.Title = "Новый пост"
	if data.IsEdit {
		data.Title = "Редактировать пост"
	}
	return s.render(c, fiber.StatusOK, "create_post.page.html", data)
}

func (s *Server) postCreate(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return s.renderPostForm(c, &viewData{Action: "/create/"})
	}

	user := viewer(c)
	in := postInput(c)
	_, err := s.svc.CreatePost(c.UserContext(), user.ID, in)
	var verr *blog.ValidationError
	switch {
	case errors.As(err, &verr):
		return s.renderPostForm(c, &viewData{Action: "/create/", Form: postForm(in), Errors: verr.Fields})
	case err != nil:
		return err
	}
	return c.Redirect(profileURL(user.Username))
}

func (s *Server) groupSlug(c *fiber.Ctx, p *models.Post) (string, error) {
	if p.GroupID == nil {
		return "", nil
	}
	groups, err := s.svc.GroupsByIDs(c.UserContext(), []string{*p.GroupID})
	if err != nil || len(groups) == 0 {
		return "", err
	}
	return groups[0].Slug, nil
}

func (s *Server) postEdit(c *fiber.Ctx) error {
	id := c.Params("id")
	user := viewer(c)
	action := postURL(id) + "edit/"

	if c.Method() != fiber.MethodPost {
		post, err := s.svc.CanEdit(c.UserContext(), user.ID, id)
		if errors.Is(err, blog.ErrForbidden) {
			return c.Redirect(postURL(id))
		}
		if err != nil {
			return err
		}
		slug, err := s.groupSlug(c, post)
		if err != nil {
			return err
		}
		form := postForm(forms.PostInput{Text: post.Text, GroupSlug: slug, Image: post.Image})
		return s.renderPostForm(c, &viewData{Action: action, IsEdit: true, Form: form})
	}

	in := postInput(c)
	_, err := s.svc.EditPost(c.UserContext(), user.ID, id, in)
	var verr *blog.ValidationError
	switch {
	case errors.Is(err, blog.ErrForbidden):
		return c.Redirect(postURL(id))
	case errors.As(err, &verr):
		return s.renderPostForm(c, &viewData{Action: action, IsEdit: true, Form: postForm(in), Errors: verr.Fields})
	case err != nil:
		return err
	}
	return c.Redirect(postURL(id))
}

func (s *Server) postDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	user := viewer(c)
	err := s.svc.DeletePost(c.UserContext(), user.ID, id)
	if errors.Is(err, blog.ErrForbidden) {
		return c.Redirect(postURL(id))
	}
	if err != nil {
		return err
	}
	return c.Redirect(profileURL(user.Username))
}

// addComment всегда возвращает на страницу поста. Пустой комментарий
// молча отбрасывается.
func (s *Server) addComment(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.svc.Post(c.UserContext(), id); err != nil {
		return err
	}
	if c.Method() == fiber.MethodPost {
		_, err := s.svc.AddComment(c.UserContext(), viewer(c).ID, id, forms.CommentInput{Text: c.FormValue("text")})
		var verr *blog.ValidationError
		if err != nil && !errors.As(err, &verr) {
			return err
		}
	}
	return c.Redirect(postURL(id))
}

func (s *Server) followIndex(c *fiber.Ctx) error {
	feed, err := s.svc.FollowFeed(c.UserContext(), viewer(c).ID, c.Query("page"))
	if err != nil {
		return err
	}
	posts, err := newLoaders(s.svc).posts(c.UserContext(), feed.Posts)
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "follow.page.html", &viewData{
		Title:   "Подписки",
		Posts:   posts,
		Page:    feed.Page,
		PageURL: "/follow/",
	})
}

func (s *Server) profileFollow(c *fiber.Ctx) error {
	author, err := s.svc.UserByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	err = s.svc.Follow(c.UserContext(), viewer(c).ID, author.ID)
	if err != nil && !errors.Is(err, blog.ErrSelfFollow) {
		return err
	}
	return c.Redirect(profileURL(author.Username))
}

func (s *Server) profileUnfollow(c *fiber.Ctx) error {
	author, err := s.svc.UserByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	if err := s.svc.Unfollow(c.UserContext(), viewer(c).ID, author.ID); err != nil {
		return err
	}
	return c.Redirect(profileURL(author.Username))
}
