// Package forms проверяет пользовательский ввод до записи в хранилище.
package forms

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxGroupTitle = 200
	MaxSlug       = 50
	MaxImageRef   = 500
	MinPassword   = 8
	MaxUsername   = 150
)

var (
	slugRe     = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
	usernameRe = regexp.MustCompile(`^[\w.@+-]+$`)
)

// Errors - ошибки по полям формы.
type Errors map[string][]string

func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e Errors) Get(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Result - либо валидное значение, либо список ошибок по полям.
type Result[T any] struct {
	Value  T
	Errors Errors
}

func (r Result[T]) Valid() bool { return len(r.Errors) == 0 }

type PostInput struct {
	Text      string
	GroupSlug string
	Image     string
}

type CommentInput struct {
	Text string
}

type GroupInput struct {
	Title       string
	Slug        string
	Description string
}

type CredentialsInput struct {
	Username string
	Password string
}

// ValidatePost проверяет текст и ссылку на картинку. Существование группы
// проверяет вызывающий, так как для этого нужно хранилище.
func ValidatePost(in PostInput) Result[PostInput] {
	errs := Errors{}
	in.Text = strings.TrimSpace(in.Text)
	in.GroupSlug = strings.TrimSpace(in.GroupSlug)
	in.Image = strings.TrimSpace(in.Image)

	if in.Text == "" {
		errs.Add("text", "Обязательное поле.")
	}
	if in.GroupSlug != "" && !slugRe.MatchString(in.GroupSlug) {
		errs.Add("group", "Выберите корректную группу.")
	}
	if in.Image != "" {
		if utf8.RuneCountInString(in.Image) > MaxImageRef {
			errs.Add("image", "Слишком длинная ссылка на изображение.")
		} else if u, err := url.Parse(in.Image); err != nil || (u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https") {
			errs.Add("image", "Некорректная ссылка на изображение.")
		}
	}
	return Result[PostInput]{Value: in, Errors: errs}
}

func ValidateComment(in CommentInput) Result[CommentInput] {
	errs := Errors{}
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		errs.Add("text", "Обязательное поле.")
	}
	return Result[CommentInput]{Value: in, Errors: errs}
}

func ValidateGroup(in GroupInput) Result[GroupInput] {
	errs := Errors{}
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)

	switch {
	case in.Title == "":
		errs.Add("title", "Обязательное поле.")
	case utf8.RuneCountInString(in.Title) > MaxGroupTitle:
		errs.Add("title", "Слишком длинное название.")
	}
	switch {
	case in.Slug == "":
		errs.Add("slug", "Обязательное поле.")
	case len(in.Slug) > MaxSlug || !slugRe.MatchString(in.Slug):
		errs.Add("slug", "Допустимы латинские буквы, цифры, дефис и подчёркивание.")
	}
	return Result[GroupInput]{Value: in, Errors: errs}
}

func ValidateCredentials(in CredentialsInput) Result[CredentialsInput] {
	errs := Errors{}
	in.Username = strings.TrimSpace(in.Username)

	switch {
	case in.Username == "":
		errs.Add("username", "Обязательное поле.")
	case utf8.RuneCountInString(in.Username) > MaxUsername || !usernameRe.MatchString(in.Username):
		errs.Add("username", "Допустимы буквы, цифры и символы @/./+/-/_.")
	}
	if utf8.RuneCountInString(in.Password) < MinPassword {
		errs.Add("password", "Пароль слишком короткий.")
	}
	return Result[CredentialsInput]{Value: in, Errors: errs}
}
