package adminapi

import (
	"context"
	"net/http"
)

type StatisticsService struct {
	c *Client
}

func (s *StatisticsService) Get(ctx context.Context) (Statistics, error) {
	var st Statistics
	err := s.c.doJSON(ctx, http.MethodGet, "/public/statistics", nil, nil, &st)
	return st, err
}
