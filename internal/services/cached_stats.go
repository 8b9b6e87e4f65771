package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bk-med/kanban/internal/cache"
	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

// CachedProjectService serves project statistics from Redis. Permission
// checks always hit the database; only the computed figures are cached.
type CachedProjectService struct {
	*ProjectServiceImpl
	cache  *cache.RedisCache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewCachedProjectService(inner *ProjectServiceImpl, c *cache.RedisCache, ttl time.Duration, logger logrus.FieldLogger) *CachedProjectService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProjectService{ProjectServiceImpl: inner, cache: c, ttl: ttl, logger: logger}
}

// The day is part of the key because due-soon and overdue depend on it.
func statsKey(projectID uuid.UUID, today models.Date) string {
	return fmt.Sprintf("project_stats:%s:%s", projectID, today)
}

func (s *CachedProjectService) Stats(ctx context.Context, actor models.Actor, id uuid.UUID) (*ProjectStats, error) {
	project, err := s.authorized(ctx, actor, id, models.ActionRead)
	if err != nil {
		return nil, err
	}

	today := models.DateOf(s.now().UTC())
	key := statsKey(project.ID, today)

	var cached ProjectStats
	err = s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WithError(err).Debug("Stats cache unavailable, computing directly")
	}

	stats, err := s.computeStats(ctx, project.ID, today)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, stats, s.ttl); err != nil {
		s.logger.WithError(err).Debug("Failed to cache project stats")
	}
	return stats, nil
}

func (s *CachedProjectService) DeleteProject(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := s.ProjectServiceImpl.DeleteProject(ctx, actor, id); err != nil {
		return err
	}
	s.InvalidateStats(ctx, id)
	return nil
}

func (s *CachedProjectService) InvalidateStats(ctx context.Context, projectID uuid.UUID) {
	pattern := fmt.Sprintf("project_stats:%s:*", projectID)
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		s.logger.WithError(err).WithField("project_id", projectID).Warn("Failed to invalidate project stats")
	}
}
