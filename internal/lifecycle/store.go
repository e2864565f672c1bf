package lifecycle

import (
	"context"
	"time"

	"taxotree/internal/models"
)

// ListOptions filters a version listing. Zero values mean "any".
type ListOptions struct {
	OnlyActive bool
	Version    int
	Status     models.VersionStatus
	Limit      int64
}

// VersionStore is the persistence contract the lifecycle engine runs against.
// Every operation is scoped by (tenantID, useCaseID); ids are the store's
// string form of the record identifier. Implementations map unreachable
// storage to ErrStoreUnavailable, unresolved ids to ErrVersionNotFound and
// failed conditional updates to ErrPreconditionFailed. The adapter never
// retries; retry policy belongs to the caller.
type VersionStore interface {
	// LatestVersion returns the highest version number in scope, 0 when none exist.
	LatestVersion(ctx context.Context, tenantID, useCaseID string) (int, error)

	// FindActive returns the active version in scope, or (nil, nil) when none is.
	FindActive(ctx context.Context, tenantID, useCaseID string) (*models.VersionRecord, error)

	// FindByID resolves a version id within the scope.
	FindByID(ctx context.Context, tenantID, useCaseID, id string) (*models.VersionRecord, error)

	// Insert persists a new version record, assigning its id. Never overwrites.
	Insert(ctx context.Context, rec *models.VersionRecord) (string, error)

	// List returns versions in scope, newest version first.
	List(ctx context.Context, tenantID, useCaseID string, opts ListOptions) ([]models.VersionRecord, error)

	// ClaimActivation atomically records the intent to activate targetID,
	// asserting that expectedID (nil for "no active version") is still the
	// claimed active version of the scope. Exactly one of any set of
	// competing claims with the same expectation succeeds; the rest get
	// ErrPreconditionFailed. The claim document is the scope's swap mutex:
	// flag flips only happen under a won claim.
	ClaimActivation(ctx context.Context, tenantID, useCaseID string, expectedID *string, targetID string) error

	// MarkInactive flips a version to inactive only while it is still active.
	MarkInactive(ctx context.Context, tenantID, useCaseID, id string) error

	// MarkActive flips a version to active only while it is not, recording
	// activatedAt and the previously active id (nil for none).
	MarkActive(ctx context.Context, tenantID, useCaseID, id string, activatedAt time.Time, previousID *string) error

	// AppendProposalLog mirrors a newly proposed version into the append-only
	// proposal log. Idempotent per version id.
	AppendProposalLog(ctx context.Context, rec *models.VersionRecord) error

	// UpsertActiveMirror replaces the read-optimized active document for the
	// record's scope. Idempotent; the same record can be mirrored again
	// safely after a crash.
	UpsertActiveMirror(ctx context.Context, rec *models.VersionRecord) error
}
