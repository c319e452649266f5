package adminapi

import (
	"context"
	"net/http"
)

// JobService manages job posts.
type JobService struct {
	c *Client
}

func (s *JobService) List(ctx context.Context, q ListQuery) (Page[JobPost], error) {
	var page Page[JobPost]
	err := s.c.doJSON(ctx, http.MethodGet, "/public/job-posts", q.values(), nil, &page)
	return page, err
}

func (s *JobService) Get(ctx context.Context, id int64) (JobPost, error) {
	var j JobPost
	err := s.c.doJSON(ctx, http.MethodGet, pathf("/public/job-posts/%d", id), nil, nil, &j)
	return j, err
}

func (s *JobService) Create(ctx context.Context, form JobForm, image *File) (JobPost, error) {
	var j JobPost
	err := s.c.doForm(ctx, http.MethodPost, "/admin/job-posts", form, "image", image, &j)
	return j, err
}

// Update replaces a job post. The backend takes a multipart form here too.
func (s *JobService) Update(ctx context.Context, id int64, form JobForm, image *File) (JobPost, error) {
	var j JobPost
	err := s.c.doForm(ctx, http.MethodPut, pathf("/admin/job-posts/%d", id), form, "image", image, &j)
	return j, err
}

func (s *JobService) Delete(ctx context.Context, id int64) error {
	return s.c.doJSON(ctx, http.MethodDelete, pathf("/admin/job-posts/%d", id), nil, nil, nil)
}
