package adminapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListQuery pages a listing. Zero values are left to the backend.
type ListQuery struct {
	Page   int
	Limit  int
	SortBy string
	Order  string
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.SortBy != "" {
		v.Set("sortBy", q.SortBy)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	return v
}

// NewsService manages news articles.
type NewsService struct {
	c *Client
}

func (s *NewsService) List(ctx context.Context, q ListQuery) ([]News, error) {
	var items []News
	err := s.c.doJSON(ctx, http.MethodGet, "/news", q.values(), nil, &items)
	return items, err
}

func (s *NewsService) Get(ctx context.Context, id int64) (News, error) {
	var n News
	err := s.c.doJSON(ctx, http.MethodGet, pathf("/news/%d", id), nil, nil, &n)
	return n, err
}

func (s *NewsService) Create(ctx context.Context, form NewsForm, image *File) (News, error) {
	var n News
	err := s.c.doForm(ctx, http.MethodPost, "/news", form, "imageFile", image, &n)
	return n, err
}

func (s *NewsService) Update(ctx context.Context, id int64, form NewsForm) (News, error) {
	var n News
	err := s.c.doJSON(ctx, http.MethodPut, pathf("/news/%d", id), nil, form, &n)
	return n, err
}

func (s *NewsService) Delete(ctx context.Context, id int64) error {
	return s.c.doJSON(ctx, http.MethodDelete, pathf("/news/%d", id), nil, nil, nil)
}
