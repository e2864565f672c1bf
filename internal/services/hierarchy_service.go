package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"taxotree/internal/lifecycle"
	"taxotree/internal/logging"
	"taxotree/internal/models"

	"github.com/google/uuid"
)

const (
	activeCacheTTL    = 5 * time.Minute
	activationLockTTL = 30 * time.Second
)

// ClassificationQuerier is the slice of the classification store the
// hierarchy service needs.
type ClassificationQuerier interface {
	Query(ctx context.Context, tenantID, useCaseID string, filters models.ClassificationFilters) ([]models.ClassificationRecord, error)
}

// HierarchyService composes the lifecycle service with the classification
// store, the Redis cache for active hierarchies and an activation lock. Redis
// is optional; without it the service goes straight to MongoDB.
type HierarchyService struct {
	lifecycle       *lifecycle.Service
	classifications ClassificationQuerier
	grouping        *GroupingService
	redis           *RedisService
	metrics         *Metrics
}

// NewHierarchyService wires the hierarchy service. grouping, redis and
// metrics may be nil.
func NewHierarchyService(lc *lifecycle.Service, classifications ClassificationQuerier, grouping *GroupingService, redis *RedisService, metrics *Metrics) *HierarchyService {
	return &HierarchyService{
		lifecycle:       lc,
		classifications: classifications,
		grouping:        grouping,
		redis:           redis,
		metrics:         metrics,
	}
}

func activeCacheKey(tenantID, useCaseID string) string {
	return fmt.Sprintf("active_hierarchy:%s:%s", tenantID, useCaseID)
}

func activationLockKey(tenantID, useCaseID string) string {
	return fmt.Sprintf("activation_lock:%s:%s", tenantID, useCaseID)
}

// Propose queries the scope's classifications, optionally consolidates
// near-duplicate category names, and persists the result as the next version.
func (s *HierarchyService) Propose(ctx context.Context, tenantID, useCaseID string, filters models.ClassificationFilters) (*models.VersionRecord, error) {
	records, err := s.classifications.Query(ctx, tenantID, useCaseID, filters)
	if err != nil {
		return nil, err
	}

	// A failed consolidation aborts the proposal; proceeding would persist a
	// version whose category names were never canonicalized.
	if s.grouping != nil {
		if err := s.grouping.Consolidate(ctx, records); err != nil {
			logging.WithScope(tenantID, useCaseID).Error("consolidation failed, proposal aborted", "error", err)
			return nil, err
		}
	}

	rec, err := s.lifecycle.Propose(ctx, tenantID, useCaseID, records, filters)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordProposal(tenantID, rec.Metadata.SkippedRecords)
	}
	if rec.IsActive() {
		s.cacheActive(ctx, rec)
	}

	logging.WithVersion(logging.WithScope(tenantID, useCaseID), rec.ID.Hex(), rec.Version).
		Info("hierarchy version proposed",
			"classifications", rec.Metadata.TotalClassifications,
			"skipped", rec.Metadata.SkippedRecords,
			"active", rec.IsActive())
	return rec, nil
}

// Activate makes versionID the authoritative hierarchy for the scope. A
// short-lived Redis lock serializes activations from this process group; the
// store's compare-and-swap remains the real guard underneath.
func (s *HierarchyService) Activate(ctx context.Context, tenantID, useCaseID, versionID string) (*lifecycle.ActivationResult, error) {
	if s.redis != nil {
		lockKey := activationLockKey(tenantID, useCaseID)
		owner := uuid.NewString()
		acquired, err := s.redis.AcquireLock(ctx, lockKey, owner, activationLockTTL)
		if err != nil {
			log.Printf("⚠️ [HIERARCHY] Activation lock unavailable for %s/%s: %v", tenantID, useCaseID, err)
		} else if !acquired {
			if s.metrics != nil {
				s.metrics.RecordActivationConflict()
			}
			return nil, &lifecycle.ConcurrentModificationError{}
		} else {
			defer func() {
				if err := s.redis.ReleaseLock(context.WithoutCancel(ctx), lockKey, owner); err != nil {
					log.Printf("⚠️ [HIERARCHY] Failed to release activation lock for %s/%s: %v", tenantID, useCaseID, err)
				}
			}()
		}
	}

	result, err := s.lifecycle.Activate(ctx, tenantID, useCaseID, versionID)
	if err != nil {
		if _, ok := lifecycle.IsConcurrentModification(err); ok && s.metrics != nil {
			s.metrics.RecordActivationConflict()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordActivation(tenantID)
	}
	if rec, lookupErr := s.lifecycle.GetVersion(ctx, tenantID, useCaseID, result.NewID); lookupErr == nil {
		s.cacheActive(ctx, rec)
	}

	logging.WithVersion(logging.WithScope(tenantID, useCaseID), result.NewID, result.Version).
		Info("hierarchy version activated", "previous_version_id", result.PreviousID)
	return result, nil
}

// GetActive returns the active version for the scope, served from the Redis
// cache when possible. (nil, nil) when the scope has no active version.
func (s *HierarchyService) GetActive(ctx context.Context, tenantID, useCaseID string) (*models.VersionRecord, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, activeCacheKey(tenantID, useCaseID)); err == nil && cached != "" {
			var rec models.VersionRecord
			if err := json.Unmarshal([]byte(cached), &rec); err == nil {
				return &rec, nil
			}
		}
	}

	rec, err := s.lifecycle.GetActive(ctx, tenantID, useCaseID)
	if err != nil || rec == nil {
		return rec, err
	}
	s.cacheActive(ctx, rec)
	return rec, nil
}

// GetVersion resolves a single version within the scope.
func (s *HierarchyService) GetVersion(ctx context.Context, tenantID, useCaseID, versionID string) (*models.VersionRecord, error) {
	return s.lifecycle.GetVersion(ctx, tenantID, useCaseID, versionID)
}

// ListVersions returns versions in scope, newest first.
func (s *HierarchyService) ListVersions(ctx context.Context, tenantID, useCaseID string, opts lifecycle.ListOptions) ([]models.VersionRecord, error) {
	return s.lifecycle.ListVersions(ctx, tenantID, useCaseID, opts)
}

// cacheActive stores the record under the scope's cache key. Failures only
// cost a cache miss.
func (s *HierarchyService) cacheActive(ctx context.Context, rec *models.VersionRecord) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	key := activeCacheKey(rec.TenantID, rec.UseCaseID)
	if err := s.redis.Set(ctx, key, string(payload), activeCacheTTL); err != nil {
		log.Printf("⚠️ [HIERARCHY] Failed to cache %s: %v", key, err)
	}
}
