package store

import "time"

// Target kinds for votes, comments, and entity context lookups.
const (
	KindGuideline  = "guideline"
	KindInitiative = "initiative"
)

// Cycle states.
const (
	CycleOpen   = "open"
	CycleClosed = "closed"
)

// Guideline / initiative statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
	StatusMerged   = "merged"
	StatusHidden   = "hidden"
)

// Guideline relation types.
const (
	RelationOrphan = "orphan"
	RelationParent = "parent"
	RelationChild  = "child"
)

// Edge anchor sides for map nodes.
const (
	SideAuto   = "auto"
	SideLeft   = "left"
	SideRight  = "right"
	SideTop    = "top"
	SideBottom = "bottom"
)

type Institution struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	InstitutionID         string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Cycle struct {
	ID            string
	InstitutionID string
	Title         string
	State         string
	MapX          *int
	MapY          *int
	CreatedAt     time.Time
}

type Guideline struct {
	ID                string
	CycleID           string
	Title             string
	Description       string
	Status            string
	RelationType      string
	ParentGuidelineID *string
	MapX              *int
	MapY              *int
	LineSide          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Initiative struct {
	ID           string
	CycleID      string
	Title        string
	Description  string
	Status       string
	MapX         *int
	MapY         *int
	LineSide     string
	GuidelineIDs []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Vote struct {
	VoterID    string
	TargetKind string
	TargetID   string
	CycleID    string
	Score      int
	UpdatedAt  time.Time
}

// VoteReceipt is the result of a successful ledger write.
type VoteReceipt struct {
	Score     int
	TotalUsed int
}

// VoteTotal is the aggregate score for one votable target.
type VoteTotal struct {
	TargetKind string
	TargetID   string
	Total      int
}

type Comment struct {
	ID         string
	TargetKind string
	TargetID   string
	Author     string
	Body       string
	CreatedAt  time.Time
}

// CommentCount is the per-target comment tally used for node sizing.
type CommentCount struct {
	TargetKind string
	TargetID   string
	Count      int
}

// EntityContext resolves a votable entity to its owning cycle and tenant.
type EntityContext struct {
	Status        string
	CycleID       string
	CycleState    string
	InstitutionID string
}
