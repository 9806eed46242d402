// Package paginator режет упорядоченную коллекцию на страницы фиксированного размера.
package paginator

import (
	"strconv"
	"strings"
)

const DefaultPageSize = 10

type Paginator struct {
	count int
	size  int
}

// Page описывает одну страницу: какие элементы взять и куда можно перейти.
type Page struct {
	Number     int
	NumPages   int
	Size       int
	Offset     int
	TotalCount int
}

func New(count, size int) *Paginator {
	if size <= 0 {
		size = DefaultPageSize
	}
	if count < 0 {
		count = 0
	}
	return &Paginator{count: count, size: size}
}

// NumPages - всегда хотя бы одна страница, даже для пустой коллекции.
func (p *Paginator) NumPages() int {
	if p.count == 0 {
		return 1
	}
	return (p.count + p.size - 1) / p.size
}

// Page разбирает номер страницы из query-параметра. Пустое или нечисловое
// значение - первая страница, номера вне диапазона прижимаются к краю.
func (p *Paginator) Page(raw string) Page {
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		number = 1
	}
	return p.At(number)
}

func (p *Paginator) At(number int) Page {
	last := p.NumPages()
	if number < 1 {
		number = 1
	}
	if number > last {
		number = last
	}
	return Page{
		Number:     number,
		NumPages:   last,
		Size:       p.size,
		Offset:     (number - 1) * p.size,
		TotalCount: p.count,
	}
}

func (pg Page) Limit() int { return pg.Size }

func (pg Page) HasPrevious() bool { return pg.Number > 1 }

func (pg Page) HasNext() bool { return pg.Number < pg.NumPages }

func (pg Page) PreviousNumber() int {
	if !pg.HasPrevious() {
		return pg.Number
	}
	return pg.Number - 1
}

func (pg Page) NextNumber() int {
	if !pg.HasNext() {
		return pg.Number
	}
	return pg.Number + 1
}

// Bounds возвращает полуинтервал [start, end) страницы внутри коллекции.
func (pg Page) Bounds() (int, int) {
	end := pg.Offset + pg.Size
	if end > pg.TotalCount {
		end = pg.TotalCount
	}
	start := pg.Offset
	if start > end {
		start = end
	}
	return start, end
}

// Slice применяет пагинацию к уже упорядоченному срезу в памяти.
func Slice[T any](items []T, raw string, size int) ([]T, Page) {
	pg := New(len(items), size).Page(raw)
	start, end := pg.Bounds()
	return items[start:end], pg
}
