package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/blog"
	"github.com/ButyrinIA/blog/internal/cache"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage/memory"
)

type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	srv   *Server
	svc   *blog.Service
	cache *cache.Cache
	clock *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"

	log := logrus.New()
	log.SetOutput(io.Discard)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	postClock := &fakeClock{t: start, step: time.Second}
	cacheClock := &fakeClock{t: start}

	svc := blog.New(memory.New(), blog.WithClock(postClock.Now), blog.WithLogger(log), blog.WithPageSize(cfg.Feed.PageSize))
	homeCache := cache.New(cfg.Cache.TTL, cache.WithClock(cacheClock.Now))
	srv := New(cfg, svc, homeCache, auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), log)
	return &testEnv{srv: srv, svc: svc, cache: homeCache, clock: cacheClock}
}

// user регистрирует пользователя и возвращает токен его сессии.
func (e *testEnv) user(t *testing.T, name string) (*models.User, string) {
	t.Helper()
	u, err := e.svc.Register(context.Background(), forms.CredentialsInput{Username: name, Password: "password123"})
	require.NoError(t, err)
	token, err := e.srv.auth.GenerateToken(u.ID)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) post(t *testing.T, authorID, text, group string) *models.Post {
	t.Helper()
	p, err := e.svc.CreatePost(context.Background(), authorID, forms.PostInput{Text: text, GroupSlug: group})
	require.NoError(t, err)
	return p
}

func (e *testEnv) do(t *testing.T, method, target, token string, form url.Values) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: tokenCookie, Value: token})
	}
	resp, err := e.srv.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, target, token string) (int, string) {
	t.Helper()
	resp := e.do(t, http.MethodGet, target, token, nil)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

// firstArticle вырезает первый пост ленты.
func firstArticle(body string) string {
	start := strings.Index(body, `<article class="post">`)
	if start < 0 {
		return ""
	}
	end := strings.Index(body[start:], "</article>")
	if end < 0 {
		return body[start:]
	}
	return body[start : start+end]
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get("Location"))
}

func TestNewServer(t *testing.T) {
	e := newTestEnv(t)
	assert.NotNil(t, e.srv.app)
	assert.Equal(t, "8080", e.srv.cfg.Server.Port)
	for _, page := range []string{"index.page.html", "group.page.html", "profile.page.html", "post_detail.page.html",
		"create_post.page.html", "follow.page.html", "login.page.html", "signup.page.html", "error.page.html"} {
		assert.Contains(t, e.srv.views.pages, page)
	}
}

func TestHome_CachedWithinTTL(t *testing.T) {
	e := newTestEnv(t)
	author, _ := e.user(t, "leo")
	e.post(t, author.ID, "Первый пост", "")

	code, first := e.get(t, "/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, first, "Первый пост")

	e.post(t, author.ID, "Второй пост", "")
	_, second := e.get(t, "/", "")
	assert.Equal(t, first, second, "в пределах TTL главная отдается из кэша")
	assert.NotContains(t, second, "Второй пост")

	e.cache.Clear()
	_, third := e.get(t, "/", "")
	assert.Contains(t, third, "Второй пост")

	e.post(t, author.ID, "Третий пост", "")
	e.clock.Advance(e.cache.TTL() + time.Second)
	_, fourth := e.get(t, "/", "")
	assert.Contains(t, fourth, "Третий пост", "после истечения TTL лента пересчитывается")
}

func TestHome_PageKeyNormalized(t *testing.T) {
	assert.Equal(t, "/?page=1", homeCacheKey(""))
	assert.Equal(t, "/?page=1", homeCacheKey("abc"))
	assert.Equal(t, "/?page=1", homeCacheKey("-3"))
	assert.Equal(t, "/?page=2", homeCacheKey(" 2 "))
}

func TestCreateInGroup(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.EnsureGroup(context.Background(), forms.GroupInput{Title: "Новости", Slug: "news"})
	require.NoError(t, err)
	author, authorToken := e.user(t, "author")
	_, strangerToken := e.user(t, "stranger")
	e.post(t, author.ID, "Старый пост", "")

	resp := e.do(t, http.MethodPost, "/create/", authorToken, url.Values{"text": {"Hello"}, "group": {"news"}})
	assertRedirect(t, resp, "/profile/author/")

	_, feed, err := e.svc.ProfileFeed(context.Background(), "author", "")
	require.NoError(t, err)
	require.Len(t, feed.Posts, 2)
	hello := feed.Posts[0]
	assert.Equal(t, "Hello", hello.Text)

	for _, path := range []string{"/", "/group/news/", "/group/news"} {
		code, body := e.get(t, path, "")
		require.Equal(t, http.StatusOK, code, path)
		assert.Contains(t, firstArticle(body), "Hello", path)
	}

	// чужой пользователь не может редактировать пост
	resp = e.do(t, http.MethodGet, "/posts/"+hello.ID+"/edit/", strangerToken, nil)
	assertRedirect(t, resp, "/posts/"+hello.ID+"/")
	resp = e.do(t, http.MethodPost, "/posts/"+hello.ID+"/edit/", strangerToken, url.Values{"text": {"Взлом"}})
	assertRedirect(t, resp, "/posts/"+hello.ID+"/")

	stored, err := e.svc.Post(context.Background(), hello.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", stored.Text)

	// автор может
	code, body := e.get(t, "/posts/"+hello.ID+"/edit/", authorToken)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Редактировать пост")
	assert.Contains(t, body, `value="news" selected`)

	resp = e.do(t, http.MethodPost, "/posts/"+hello.ID+"/edit/", authorToken, url.Values{"text": {"Hello, edited"}})
	assertRedirect(t, resp, "/posts/"+hello.ID+"/")
	stored, err = e.svc.Post(context.Background(), hello.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello, edited", stored.Text)
	assert.Nil(t, stored.GroupID)
}

func TestCreateValidation(t *testing.T) {
	e := newTestEnv(t)
	author, token := e.user(t, "author")

	resp := e.do(t, http.MethodPost, "/create/", token, url.Values{"text": {"   "}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Обязательное поле.")

	resp = e.do(t, http.MethodPost, "/create/", token, url.Values{"text": {"Текст"}, "group": {"nope"}})
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Выберите корректную группу.")
	assert.Contains(t, string(body), "Текст")

	_, feed, err := e.svc.ProfileFeed(context.Background(), author.Username, "")
	require.NoError(t, err)
	assert.Empty(t, feed.Posts, "невалидная форма ничего не сохраняет")
}

func TestGuestRedirects(t *testing.T) {
	e := newTestEnv(t)
	author, _ := e.user(t, "author")
	p := e.post(t, author.ID, "Пост", "")

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/create/", "/auth/login/?next=/create/"},
		{http.MethodGet, "/follow/", "/auth/login/?next=/follow/"},
		{http.MethodGet, "/follow/?page=2", "/auth/login/?next=/follow/%3Fpage%3D2"},
		{http.MethodGet, "/posts/" + p.ID + "/edit/", "/auth/login/?next=/posts/" + p.ID + "/edit/"},
		{http.MethodPost, "/posts/" + p.ID + "/comment/", "/auth/login/?next=/posts/" + p.ID + "/comment/"},
		{http.MethodGet, "/profile/author/follow/", "/auth/login/?next=/profile/author/follow/"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assertRedirect(t, e.do(t, tt.method, tt.path, "", nil), tt.want)
		})
	}

	// битый токен равен гостю
	assertRedirect(t, e.do(t, http.MethodGet, "/create/", "garbage", nil), "/auth/login/?next=/create/")
}

func TestNotFound(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/unexisting_page/", "/group/ghost/", "/profile/ghost/", "/posts/missing/"} {
		code, body := e.get(t, path, "")
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.Contains(t, body, "Страница не найдена", path)
	}
}

func TestPostDetailAndComments(t *testing.T) {
	e := newTestEnv(t)
	author, authorToken := e.user(t, "author")
	_, readerToken := e.user(t, "reader")
	p := e.post(t, author.ID, "Пост с комментариями", "")
	detail := "/posts/" + p.ID + "/"

	resp := e.do(t, http.MethodPost, detail+"comment/", readerToken, url.Values{"text": {"Отличный пост"}})
	assertRedirect(t, resp, detail)
	resp = e.do(t, http.MethodPost, detail+"comment/", readerToken, url.Values{"text": {"Ещё комментарий"}})
	assertRedirect(t, resp, detail)
	resp = e.do(t, http.MethodPost, detail+"comment/", readerToken, url.Values{"text": {""}})
	assertRedirect(t, resp, detail)
	assertRedirect(t, e.do(t, http.MethodGet, detail+"comment/", readerToken, nil), detail)

	code, body := e.get(t, detail, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Пост с комментариями")
	first, second := strings.Index(body, "Отличный пост"), strings.Index(body, "Ещё комментарий")
	require.Greater(t, first, 0)
	assert.Less(t, first, second, "комментарии от старых к новым")
	assert.NotContains(t, body, "/comment/", "гость не видит формы")
	assert.NotContains(t, body, "/edit/")

	_, body = e.get(t, detail, authorToken)
	assert.Contains(t, body, detail+"edit/")

	_, comments, err := e.svc.PostDetail(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 2)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/posts/missing/comment/", readerToken, url.Values{"text": {"x"}}).StatusCode)
}

func TestDeletePost(t *testing.T) {
	e := newTestEnv(t)
	author, authorToken := e.user(t, "author")
	_, strangerToken := e.user(t, "stranger")
	p := e.post(t, author.ID, "Удаляемый", "")
	detail := "/posts/" + p.ID + "/"

	assertRedirect(t, e.do(t, http.MethodPost, detail+"delete/", strangerToken, nil), detail)
	code, _ := e.get(t, detail, "")
	assert.Equal(t, http.StatusOK, code)

	assertRedirect(t, e.do(t, http.MethodPost, detail+"delete/", authorToken, nil), "/profile/author/")
	code, _ = e.get(t, detail, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFollowFlow(t *testing.T) {
	e := newTestEnv(t)
	_, aToken := e.user(t, "a")
	b, _ := e.user(t, "b")
	_, cToken := e.user(t, "c")
	for i := 1; i <= 3; i++ {
		e.post(t, b.ID, fmt.Sprintf("Пост автора b №%d", i), "")
	}

	assertRedirect(t, e.do(t, http.MethodGet, "/profile/b/follow/", aToken, nil), "/profile/b/")
	// повторная подписка ничего не меняет
	assertRedirect(t, e.do(t, http.MethodPost, "/profile/b/follow/", aToken, nil), "/profile/b/")
	stats, err := e.svc.FollowStats(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Followers)

	code, body := e.get(t, "/follow/", aToken)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, strings.Count(body, `<article class="post">`))
	for i := 1; i <= 3; i++ {
		assert.Contains(t, body, fmt.Sprintf("Пост автора b №%d", i))
	}

	_, body = e.get(t, "/follow/", cToken)
	assert.Zero(t, strings.Count(body, `<article class="post">`))

	_, body = e.get(t, "/profile/b/", aToken)
	assert.Contains(t, body, "Отписаться")
	assert.Contains(t, body, "Подписчиков: 1")
	_, body = e.get(t, "/profile/b/", cToken)
	assert.Contains(t, body, "Подписаться")

	assertRedirect(t, e.do(t, http.MethodPost, "/profile/b/unfollow/", aToken, nil), "/profile/b/")
	_, body = e.get(t, "/follow/", aToken)
	assert.Zero(t, strings.Count(body, `<article class="post">`))

	// подписка на себя отклоняется без ошибки
	assertRedirect(t, e.do(t, http.MethodGet, "/profile/a/follow/", aToken, nil), "/profile/a/")
	_, body = e.get(t, "/profile/a/", aToken)
	assert.Contains(t, body, "Подписчиков: 0")
	assert.NotContains(t, body, "Подписаться")

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/profile/ghost/follow/", aToken, nil).StatusCode)
}

func TestPagination(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.EnsureGroup(context.Background(), forms.GroupInput{Title: "Япония", Slug: "japan"})
	require.NoError(t, err)
	author, _ := e.user(t, "NoName")
	for i := 0; i < 13; i++ {
		e.post(t, author.ID, fmt.Sprintf("Тестовый пост %d", i), "japan")
	}

	for _, base := range []string{"/", "/group/japan/", "/profile/NoName/"} {
		_, body := e.get(t, base, "")
		assert.Equal(t, 10, strings.Count(body, `<article class="post">`), base)
		assert.Contains(t, body, "Страница 1 из 2", base)

		_, body = e.get(t, base+"?page=2", "")
		assert.Equal(t, 3, strings.Count(body, `<article class="post">`), base)
		assert.Contains(t, body, "Тестовый пост 0", base)

		_, body = e.get(t, base+"?page=99", "")
		assert.Equal(t, 3, strings.Count(body, `<article class="post">`), base)
	}
}

func TestSignupLoginLogout(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/auth/signup/", "", url.Values{"username": {"newbie"}, "password": {"supersecret"}})
	assertRedirect(t, resp, "/")
	var token string
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookie {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)
	_, body := e.get(t, "/", token)
	assert.Contains(t, body, "/profile/newbie/")

	resp = e.do(t, http.MethodPost, "/auth/signup/", "", url.Values{"username": {"newbie"}, "password": {"supersecret"}})
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "Пользователь с таким именем уже существует.")

	resp = e.do(t, http.MethodPost, "/auth/login/?next=/follow/", "", url.Values{"username": {"newbie"}, "password": {"supersecret"}})
	assertRedirect(t, resp, "/follow/")

	resp = e.do(t, http.MethodPost, "/auth/login/", "", url.Values{"username": {"newbie"}, "password": {"supersecret"}, "next": {"//evil.example"}})
	assertRedirect(t, resp, "/")

	resp = e.do(t, http.MethodPost, "/auth/login/", "", url.Values{"username": {"newbie"}, "password": {"wrong-password"}})
	raw, _ = io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "Введите правильные имя пользователя и пароль.")

	resp = e.do(t, http.MethodGet, "/auth/logout/", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookie {
			assert.Empty(t, c.Value)
		}
	}
}

func TestDeletedUserSessionIsGuest(t *testing.T) {
	e := newTestEnv(t)
	u, token := e.user(t, "gone")
	require.NoError(t, e.svc.DeleteUser(context.Background(), u.ID))

	assertRedirect(t, e.do(t, http.MethodGet, "/create/", token, nil), "/auth/login/?next=/create/")
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/auth/login/?next=/create/", loginURL("/create/"))
	assert.Equal(t, "/auth/login/?next=/follow/%3Fpage%3D2%26x%3D1", loginURL("/follow/?page=2&x=1"))

	assert.Equal(t, "/follow/", safeNext("/follow/"))
	assert.Empty(t, safeNext("https://evil.example/"))
	assert.Empty(t, safeNext("//evil.example/"))
	assert.Empty(t, safeNext(""))
}
