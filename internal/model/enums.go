package model

// Project categories
type Category string

const (
	CategoryAction      Category = "action"
	CategoryDrama       Category = "drama"
	CategoryComedy      Category = "comedy"
	CategoryScifi       Category = "scifi"
	CategoryHorror      Category = "horror"
	CategoryDocumentary Category = "documentary"
	CategoryAnimation   Category = "animation"
	CategoryThriller    Category = "thriller"
)

var ValidCategories = []Category{
	CategoryAction, CategoryDrama, CategoryComedy, CategoryScifi,
	CategoryHorror, CategoryDocumentary, CategoryAnimation, CategoryThriller,
}

// Project types
type ProjectType string

const (
	ProjectTypeFilm    ProjectType = "film"
	ProjectTypeTrailer ProjectType = "trailer"
)

// Phase status
type PhaseStatus string

const (
	PhaseStatusLocked    PhaseStatus = "locked"
	PhaseStatusActive    PhaseStatus = "active"
	PhaseStatusCompleted PhaseStatus = "completed"
)

// Task status
type TaskStatus string

const (
	TaskStatusAvailable   TaskStatus = "available"
	TaskStatusClaimed     TaskStatus = "claimed"
	TaskStatusSubmitted   TaskStatus = "submitted"
	TaskStatusAIReview    TaskStatus = "ai_review"
	TaskStatusHumanReview TaskStatus = "human_review"
	TaskStatusValidated   TaskStatus = "validated"
	TaskStatusRejected    TaskStatus = "rejected"
)

// ActiveTaskStatuses are the states that count against a worker's
// concurrency cap.
var ActiveTaskStatuses = []TaskStatus{
	TaskStatusClaimed, TaskStatusSubmitted, TaskStatusAIReview, TaskStatusHumanReview,
}

// Task types
type TaskType string

const (
	TaskTypeScript     TaskType = "script"
	TaskTypeStoryboard TaskType = "storyboard"
	TaskTypeShotPrompt TaskType = "shot_prompt"
	TaskTypeVoiceover  TaskType = "voiceover"
	TaskTypeMusicBrief TaskType = "music_brief"
	TaskTypeVFX        TaskType = "vfx"
	TaskTypeStuntPrevz TaskType = "stunt_previz"
	TaskTypeSoundFX    TaskType = "sound_design"
	TaskTypeResearch   TaskType = "research"
	TaskTypeEditReview TaskType = "edit_review"
	TaskTypeColorGrade TaskType = "color_grade"
	TaskTypeFinalQC    TaskType = "final_qc"
)

// Difficulty tiers
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// Review verdicts from the automated reviewer
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictFlagged  Verdict = "flagged"
)

// Risk levels
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// Transcode job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether a transcode job status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Transcode profiles
type TranscodeProfile string

const (
	Profile1080p    TranscodeProfile = "1080p"
	Profile720p     TranscodeProfile = "720p"
	Profile480p     TranscodeProfile = "480p"
	ProfileHLS      TranscodeProfile = "hls"
	ProfileAudioMP3 TranscodeProfile = "audio"
)

var ValidProfiles = []TranscodeProfile{
	Profile1080p, Profile720p, Profile480p, ProfileHLS, ProfileAudioMP3,
}
