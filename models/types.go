package models

// Chamber constants
const (
	ChamberJoint  = "Joint"
	ChamberHouse  = "House"
	ChamberSenate = "Senate"
)

// Compliance state constants
const (
	StateCompliant    = "compliant"
	StateNonCompliant = "non-compliant"
	StateIncomplete   = "incomplete"
	StateUnknown      = "unknown"
)

// Role constants
const (
	RoleUser       = "user"
	RolePrivileged = "privileged"
	RoleAdmin      = "admin"
)

// Email token purposes
const (
	PurposeVerification  = "verification"
	PurposePasswordReset = "password_reset"
)

// ChangelogCategories in display order.
var ChangelogCategories = []string{"added", "changed", "fixed", "removed", "deprecated", "security"}

// Dashboard types

type Committee struct {
	CommitteeID string `json:"committee_id"`
	Name        string `json:"name"`
	Chamber     string `json:"chamber"`
	URL         string `json:"url"`
	UpdatedAt   string `json:"updated_at"`
}

type CommitteeDetails struct {
	Committee
	HouseRoom            *string `json:"house_room"`
	HouseAddress         *string `json:"house_address"`
	HousePhone           *string `json:"house_phone"`
	SenateRoom           *string `json:"senate_room"`
	SenateAddress        *string `json:"senate_address"`
	SenatePhone          *string `json:"senate_phone"`
	HouseChairName       *string `json:"house_chair_name"`
	HouseChairEmail      *string `json:"house_chair_email"`
	HouseViceChairName   *string `json:"house_vice_chair_name"`
	HouseViceChairEmail  *string `json:"house_vice_chair_email"`
	SenateChairName      *string `json:"senate_chair_name"`
	SenateChairEmail     *string `json:"senate_chair_email"`
	SenateViceChairName  *string `json:"senate_vice_chair_name"`
	SenateViceChairEmail *string `json:"senate_vice_chair_email"`
}

type GlobalStats struct {
	TotalCommittees       int     `json:"total_committees"`
	TotalBills            int     `json:"total_bills"`
	CompliantBills        int     `json:"compliant_bills"`
	IncompleteBills       int     `json:"incomplete_bills"`
	NonCompliantBills     int     `json:"non_compliant_bills"`
	UnknownBills          int     `json:"unknown_bills"`
	OverallComplianceRate float64 `json:"overall_compliance_rate"`
	LatestReportDate      *string `json:"latest_report_date"`
}

type CommitteeStats struct {
	CommitteeID         string  `json:"committee_id"`
	CommitteeName       string  `json:"committee_name"`
	Chamber             string  `json:"chamber"`
	TotalBills          int     `json:"total_bills"`
	CompliantCount      int     `json:"compliant_count"`
	IncompleteCount     int     `json:"incomplete_count"`
	NonCompliantCount   int     `json:"non_compliant_count"`
	UnknownCount        int     `json:"unknown_count"`
	ComplianceRate      float64 `json:"compliance_rate"`
	LastReportGenerated *string `json:"last_report_generated"`
}

// Bill is one latest-per-committee compliance row as served to the dashboard.
type Bill struct {
	BillID               string  `json:"bill_id"`
	BillTitle            *string `json:"bill_title"`
	BillURL              string  `json:"bill_url"`
	CommitteeID          string  `json:"committee_id"`
	CommitteeName        *string `json:"committee_name"`
	Chamber              *string `json:"chamber"`
	HearingDate          *string `json:"hearing_date"`
	Deadline60           *string `json:"deadline_60"`
	EffectiveDeadline    *string `json:"effective_deadline"`
	ExtensionOrderURL    *string `json:"extension_order_url"`
	ExtensionDate        *string `json:"extension_date"`
	ReportedOut          bool    `json:"reported_out"`
	SummaryPresent       bool    `json:"summary_present"`
	SummaryURL           *string `json:"summary_url"`
	VotesPresent         bool    `json:"votes_present"`
	VotesURL             *string `json:"votes_url"`
	State                string  `json:"state"`
	Reason               string  `json:"reason"`
	NoticeStatus         *string `json:"notice_status"`
	NoticeGapDays        *int64  `json:"notice_gap_days"`
	AnnouncementDate     *string `json:"announcement_date"`
	ScheduledHearingDate *string `json:"scheduled_hearing_date"`
	GeneratedAt          string  `json:"generated_at"`
}

type ScanMetadata struct {
	DiffReport any     `json:"diff_report"`
	Analysis   *string `json:"analysis"`
	ScanDate   *string `json:"scan_date"`
}

// Changelog types

type ChangelogVersion struct {
	Version    string              `json:"version"`
	Date       string              `json:"date"`
	UserAgent  *string             `json:"user_agent"`
	ReceivedAt string              `json:"received_at"`
	Changes    map[string][]string `json:"changes"`
}

type ChangelogResponse struct {
	Status    string             `json:"status"`
	Count     int                `json:"count"`
	Changelog []ChangelogVersion `json:"changelog"`
}

// Account types

type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	PwHash    string `json:"-"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

type SavedView struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"-"`
	Name        string `json:"name"`
	PayloadJSON string `json:"payload_json"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// SavedViewDetail carries the decoded payload alongside the raw JSON.
type SavedViewDetail struct {
	SavedView
	Payload any `json:"payload"`
}

type SigningKey struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"-"`
	KeyID       string  `json:"key_id"`
	Secret      string  `json:"secret,omitempty"`
	Description *string `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	RevokedAt   *string `json:"revoked_at"`
	IsRevoked   bool    `json:"is_revoked"`
	UserEmail   string  `json:"user_email,omitempty"`
	UserRole    string  `json:"user_role,omitempty"`
}

// Request types

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

type UpdateRoleRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type CreateKeyRequest struct {
	Description string `json:"description"`
}

type VerifyKeyRequest struct {
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"`
}

type ContactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

// ViewRequest is shared by create and update; nil fields were absent.
type ViewRequest struct {
	Name    *string `json:"name"`
	Payload any     `json:"payload"`
}

// Response types

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the envelope used by the ingest endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
