package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VersionStatus is the lifecycle state of a hierarchy version.
type VersionStatus string

const (
	VersionStatusProposed VersionStatus = "proposed"
	VersionStatusActive   VersionStatus = "active"
	VersionStatusInactive VersionStatus = "inactive"
)

// VersionMetadata carries the lifecycle fields of a version. Status, Active,
// ActivatedAt and PreviousVersion nest here to preserve the stored layout
// existing deployments depend on.
type VersionMetadata struct {
	TotalClassifications int                   `bson:"totalClassifications" json:"total_classifications"`
	SkippedRecords       int                   `bson:"skippedRecords,omitempty" json:"skipped_records,omitempty"`
	Filters              ClassificationFilters `bson:"filters" json:"filters"`
	Status               VersionStatus         `bson:"status" json:"status"`
	Active               bool                  `bson:"active" json:"active"`
	ActivatedAt          *time.Time            `bson:"activatedAt,omitempty" json:"activated_at,omitempty"`
	PreviousVersion      *primitive.ObjectID   `bson:"previousVersion,omitempty" json:"previous_version,omitempty"`
}

// VersionRecord is one immutable snapshot of a computed hierarchy for a
// (tenant, use case) pair. Version numbers are monotonic per scope starting
// at 1. At most one record per scope has metadata.active=true.
type VersionRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  string             `bson:"tenantId" json:"tenant_id"`
	UseCaseID string             `bson:"useCaseId" json:"use_case_id"`
	Version   int                `bson:"version" json:"version"`
	Hierarchy Hierarchy          `bson:"hierarchy" json:"hierarchy"`
	Metadata  VersionMetadata    `bson:"metadata" json:"metadata"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}

// IsActive reports whether this version is the authoritative one for its scope.
func (v *VersionRecord) IsActive() bool {
	return v.Metadata.Active
}

// ActiveHierarchy is the read-optimized mirror document: one per
// (tenant, use case), always reflecting the currently active version.
type ActiveHierarchy struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  string             `bson:"tenantId" json:"tenant_id"`
	UseCaseID string             `bson:"useCaseId" json:"use_case_id"`
	VersionID primitive.ObjectID `bson:"versionId" json:"version_id"`
	Version   int                `bson:"version" json:"version"`
	Hierarchy Hierarchy          `bson:"hierarchy" json:"hierarchy"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updated_at"`
}

// ActivationClaim is the per-scope activation intent record. An activation
// first advances this document from the observed active version to its target
// with a conditional write, then flips the version flags. A claim whose
// target is not the active version marks a swap that crashed mid-flight and
// is rolled forward by the reconciler.
type ActivationClaim struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  string             `bson:"tenantId" json:"tenant_id"`
	UseCaseID string             `bson:"useCaseId" json:"use_case_id"`
	VersionID primitive.ObjectID `bson:"versionId" json:"version_id"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updated_at"`
}

// ProposalLogEntry is the append-only record of every version ever proposed,
// tagged with the primary record's id.
type ProposalLogEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VersionID primitive.ObjectID `bson:"versionId" json:"version_id"`
	TenantID  string             `bson:"tenantId" json:"tenant_id"`
	UseCaseID string             `bson:"useCaseId" json:"use_case_id"`
	Version   int                `bson:"version" json:"version"`
	Metadata  VersionMetadata    `bson:"metadata" json:"metadata"`
	LoggedAt  time.Time          `bson:"loggedAt" json:"logged_at"`
}
