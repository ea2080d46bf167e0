package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums
type Role string

const (
	RoleIntro   Role = "intro"
	RoleProduct Role = "product"
	RoleOutro   Role = "outro"
	RoleMusic   Role = "music"
)

// ParseRole validates a role string coming from a request or CLI flag.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleIntro, RoleProduct, RoleOutro, RoleMusic:
		return Role(s), true
	}
	return "", false
}

type AssemblyPolicy string

const (
	PolicyCurated     AssemblyPolicy = "curated"      // Selection.Selected verbatim
	PolicyBudgetSlice AssemblyPolicy = "budget_slice" // floor(budget/estimate) clips of the pool
)

type BatchStatus string

const (
	BatchStatusQueued    BatchStatus = "queued"
	BatchStatusRendering BatchStatus = "rendering"
	BatchStatusPackaging BatchStatus = "packaging"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

type RenderStatus string

const (
	RenderStatusSucceeded RenderStatus = "succeeded"
	RenderStatusFailed    RenderStatus = "failed"
)

// RenderStage identifies which encoder step produced a failure.
type RenderStage string

const (
	StageAssemble    RenderStage = "assemble"
	StageConcatenate RenderStage = "concatenate"
	StageFinalize    RenderStage = "finalize"
)

// Models

// ClipRef is an immutable handle to an ingested asset in the job directory.
type ClipRef struct {
	ID            uuid.UUID `json:"id"`
	Role          Role      `json:"role"`
	Path          string    `json:"path"`
	Filename      string    `json:"filename"`
	ByteSize      int64     `json:"byte_size"`
	DurationSec   *float64  `json:"duration_sec,omitempty"`
	ThumbnailPath *string   `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AssetPool is an ordered sequence of clips sharing one role.
type AssetPool []ClipRef

// Paths returns the storage locations of the pool in order.
func (p AssetPool) Paths() []string {
	paths := make([]string, len(p))
	for i, c := range p {
		paths[i] = c.Path
	}
	return paths
}

// Find returns the position of the clip with the given ID, or -1.
func (p AssetPool) Find(id uuid.UUID) int {
	for i, c := range p {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Selection partitions the product pool into the ordered clips that appear
// in every variation and an unordered reserve.
type Selection struct {
	Selected    AssetPool `json:"selected"`
	Available   AssetPool `json:"available"`
	MaxSelected int       `json:"max_selected"`
}

// IsEmpty reports whether the selection has never been initialized.
func (s Selection) IsEmpty() bool {
	return len(s.Selected) == 0 && len(s.Available) == 0
}

// Clone returns a copy that shares no backing arrays with s.
func (s Selection) Clone() Selection {
	return Selection{
		Selected:    append(AssetPool(nil), s.Selected...),
		Available:   append(AssetPool(nil), s.Available...),
		MaxSelected: s.MaxSelected,
	}
}

// Variation is one concrete intro + products + outro (+ music) combination.
type Variation struct {
	Index    int       `json:"index"`
	Intro    *ClipRef  `json:"intro"`
	Products AssetPool `json:"products,omitempty"`
	Outro    *ClipRef  `json:"outro"`
	Music    *ClipRef  `json:"music,omitempty"`
}

// RenderResult records the outcome of rendering one variation.
type RenderResult struct {
	Index      int          `json:"index"`
	Status     RenderStatus `json:"status"`
	OutputPath string       `json:"output_path,omitempty"`
	Stage      RenderStage  `json:"stage,omitempty"` // set on failure
	Error      string       `json:"error,omitempty"`
	Duration   string       `json:"duration"`
}

func (r RenderResult) Succeeded() bool {
	return r.Status == RenderStatusSucceeded
}

// Archive is the packaged container of all successful outputs.
type Archive struct {
	Path     string   `json:"path"`
	Entries  []string `json:"entries"`
	Skipped  []string `json:"skipped,omitempty"`
	ByteSize int64    `json:"byte_size"`
}

// BatchOptions are the user-facing parameters of one render run.
type BatchOptions struct {
	Count                    int            `json:"count"`
	Policy                   AssemblyPolicy `json:"policy"`
	ThreeWay                 bool           `json:"three_way"`
	UseMusic                 bool           `json:"use_music"`
	TargetDurationSec        float64        `json:"target_duration_sec"`
	ProductTimeBudgetSec     float64        `json:"product_time_budget_sec"`
	EstimatedClipDurationSec float64        `json:"estimated_clip_duration_sec"`
}

// Batch is the terminal (or in-flight) state of one render run.
type Batch struct {
	ID          uuid.UUID      `json:"id"`
	SessionID   uuid.UUID      `json:"session_id"`
	Status      BatchStatus    `json:"status"`
	Options     BatchOptions   `json:"options"`
	Source      *BatchSource   `json:"source,omitempty"`
	Total       int            `json:"total"`
	Done        int            `json:"done"`
	Succeeded   int            `json:"succeeded"`
	Results     []RenderResult `json:"results,omitempty"`
	Archive     *Archive       `json:"archive,omitempty"`
	DownloadURL *string        `json:"download_url,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// BatchSource is the session state a batch was planned from. It is copied at
// creation so later uploads and selection changes do not alter the batch.
type BatchSource struct {
	Intros    AssetPool `json:"intros"`
	Products  AssetPool `json:"products"`
	Outros    AssetPool `json:"outros"`
	Selection Selection `json:"selection"`
	Music     *ClipRef  `json:"music,omitempty"`
}

// Failures returns the failed results in index order.
func (b *Batch) Failures() []RenderResult {
	var failed []RenderResult
	for _, r := range b.Results {
		if !r.Succeeded() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Session holds the caller-owned state of one job: the uploaded pools,
// the product selection and the batches rendered from them.
type Session struct {
	ID        uuid.UUID   `json:"id"`
	WorkDir   string      `json:"work_dir"`
	Intros    AssetPool   `json:"intros"`
	Products  AssetPool   `json:"products"`
	Outros    AssetPool   `json:"outros"`
	Music     *ClipRef    `json:"music,omitempty"`
	Selection Selection   `json:"selection"`
	BatchIDs  []uuid.UUID `json:"batch_ids,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Pool returns the pool for a video role.
func (s *Session) Pool(role Role) AssetPool {
	switch role {
	case RoleIntro:
		return s.Intros
	case RoleProduct:
		return s.Products
	case RoleOutro:
		return s.Outros
	}
	return nil
}

// DTOs for API responses

type SessionResponse struct {
	Session
	VariationCount int `json:"variation_count"`
}

type CreateBatchRequest struct {
	Count    int     `json:"count"`
	Policy   *string `json:"policy,omitempty"`    // Default: ASSEMBLY_POLICY
	ThreeWay bool    `json:"three_way,omitempty"` // intro×product×outro
	UseMusic *bool   `json:"use_music,omitempty"` // Default: true when music was uploaded
}

type CreateBatchResponse struct {
	BatchID uuid.UUID   `json:"batch_id"`
	Status  BatchStatus `json:"status"`
	Total   int         `json:"total"`
}

type SelectionRequest struct {
	ClipID uuid.UUID `json:"clip_id"`
}

type ReorderRequest struct {
	ClipIDs []uuid.UUID `json:"clip_ids"`
}

type VariationsResponse struct {
	Total      int         `json:"total"`
	Variations []Variation `json:"variations"`
}
