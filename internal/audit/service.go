package audit

import (
	"context"
	"fmt"
	"time"
)

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Module   string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit event.
type TimelineRow struct {
	ActorID  int64          `json:"actor_id"`
	Module   string         `json:"module"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// PagingInfo carries cursorless page navigation state.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Repository reads audit events.
type Repository interface {
	Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Service coordinates audit timeline retrieval.
type Service struct {
	repo Repository
}

// NewService constructs the audit service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches audit events with paging. One extra row is requested
// to detect whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Timeline(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
