package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums
type SceneStatus string

const (
	SceneStatusPending    SceneStatus = "pending"
	SceneStatusGenerating SceneStatus = "generating"
	SceneStatusCompleted  SceneStatus = "completed"
	SceneStatusError      SceneStatus = "error"
)

// StageStatus tracks one sub-stage of a scene (i2v, background audio, lip-sync).
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusProcessing StageStatus = "processing"
	StageStatusDone       StageStatus = "done"
	StageStatusError      StageStatus = "error"
)

type VoiceType string

const (
	VoiceTypeNarration VoiceType = "narration"
	VoiceTypeGigi      VoiceType = "gigi"
)

type TimelineStatus string

const (
	TimelineStatusIdle      TimelineStatus = "idle"
	TimelineStatusStreaming TimelineStatus = "streaming"
	TimelineStatusDone      TimelineStatus = "done"
	TimelineStatusError     TimelineStatus = "error"
)

type MergeStatus string

const (
	MergeStatusIdle    MergeStatus = "idle"
	MergeStatusRunning MergeStatus = "running"
	MergeStatusDone    MergeStatus = "done"
	MergeStatusError   MergeStatus = "error"
)

// Step is a position in the wizard.
type Step int

const (
	StepBrandScenario Step = 1
	StepStoryboard    Step = 2
	StepPreview       Step = 3
	StepFinal         Step = 4
)

func (s Step) String() string {
	switch s {
	case StepBrandScenario:
		return "brand_scenario"
	case StepStoryboard:
		return "storyboard"
	case StepPreview:
		return "preview"
	case StepFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Models

type BrandScenarioData struct {
	BrandName    string  `json:"brand_name"`
	BrandConcept *string `json:"brand_concept,omitempty"`
	UserPrompt   *string `json:"user_prompt,omitempty"`
	Scenario     *string `json:"scenario,omitempty"`
	ProductImage *string `json:"product_image,omitempty"` // URL or data URI
}

type T2IPrompt struct {
	Background           string `json:"background"`
	CharacterPoseAndGaze string `json:"character_pose_and_gaze"`
	Product              string `json:"product"`
	CameraAngle          string `json:"camera_angle"`
}

type ImageEditPrompt struct {
	PoseChange      string `json:"pose_change"`
	GazeChange      string `json:"gaze_change"`
	Expression      string `json:"expression"`
	AdditionalEdits string `json:"additional_edits"`
}

type TimelineItem struct {
	Index                  int              `json:"index"`
	Timestamp              string           `json:"timestamp"`
	TimeStart              float64          `json:"time_start"`
	TimeEnd                float64          `json:"time_end"`
	Scene                  string           `json:"scene"`
	Action                 string           `json:"action"`
	Dialogue               string           `json:"dialogue"`
	BackgroundSoundsPrompt *string          `json:"background_sounds_prompt,omitempty"`
	T2IPrompt              *T2IPrompt       `json:"t2i_prompt,omitempty"`
	ImageEditPrompt        *ImageEditPrompt `json:"image_edit_prompt,omitempty"`
	GigiImage              *string          `json:"gigi_image,omitempty"` // URL or data URI
	HairReference          *string          `json:"hair_reference,omitempty"`
	OutfitReference        *string          `json:"outfit_reference,omitempty"`
	HairText               *string          `json:"hair_text,omitempty"`
	OutfitText             *string          `json:"outfit_text,omitempty"`
	MakeupReference        *string          `json:"makeup_reference,omitempty"`
	MakeupText             *string          `json:"makeup_text,omitempty"`
	VoiceType              VoiceType        `json:"voice_type"`
}

// HasDialogue reports whether the scene has spoken lines that need TTS and lip-sync.
func (t TimelineItem) HasDialogue() bool {
	return strings.TrimSpace(t.Dialogue) != ""
}

// VoiceData holds voice synthesis parameters for the whole project.
type VoiceData struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
	Language        string   `json:"language"`
	Emotion         string   `json:"emotion"`
	Speed           float64  `json:"speed"`
	Pitch           float64  `json:"pitch"`
	CloneVoiceFile  *string  `json:"clone_voice_file,omitempty"` // reference recording, URL or data URI
}

// DefaultVoice returns the settings used until the user applies their own.
func DefaultVoice() VoiceData {
	return VoiceData{
		Stability:       0.8,
		SimilarityBoost: 0.8,
		Language:        "ko",
		Emotion:         "cheerful",
		Speed:           1.0,
		Pitch:           1.0,
	}
}

type VideoItem struct {
	Index           int          `json:"index"`
	TimelineItem    TimelineItem `json:"timeline_item"`
	Status          SceneStatus  `json:"status"`
	I2VStatus       StageStatus  `json:"i2v_status"`
	AudioStatus     StageStatus  `json:"audio_status"`
	LipsyncStatus   StageStatus  `json:"lipsync_status"`
	I2VVideoURL     *string      `json:"i2v_video_url,omitempty"`
	MMAudioVideoURL *string      `json:"mmaudio_video_url,omitempty"`
	TTSAudioURL     *string      `json:"tts_audio_url,omitempty"`
	FinalVideoURL   *string      `json:"final_video_url,omitempty"`
	Error           *string      `json:"error,omitempty"`
	Attempt         int          `json:"attempt"`
}

// NewVideoItem creates the pending record for a finalized timeline scene.
func NewVideoItem(item TimelineItem) VideoItem {
	return VideoItem{
		Index:         item.Index,
		TimelineItem:  item,
		Status:        SceneStatusPending,
		I2VStatus:     StageStatusPending,
		AudioStatus:   StageStatusPending,
		LipsyncStatus: StageStatusPending,
	}
}

type TimelineMetadata struct {
	Title       string `json:"title,omitempty"`
	TotalScenes int    `json:"total_scenes,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

type MergeResult struct {
	Status     MergeStatus `json:"status"`
	OutputFile string      `json:"output_file,omitempty"`
	VideoURL   string      `json:"video_url,omitempty"`
	Duration   float64     `json:"duration,omitempty"`
	Files      []string    `json:"files,omitempty"`
	Error      *string     `json:"error,omitempty"`
}

// Session is one wizard run. All of it lives in memory.
type Session struct {
	ID               uuid.UUID          `json:"id"`
	RemoteSessionID  string             `json:"remote_session_id"`
	Step             Step               `json:"step"`
	Brand            *BrandScenarioData `json:"brand,omitempty"`
	Timeline         []TimelineItem     `json:"timeline"`
	TimelineStatus   TimelineStatus     `json:"timeline_status"`
	TimelineMetadata *TimelineMetadata  `json:"timeline_metadata,omitempty"`
	TimelineError    *string            `json:"timeline_error,omitempty"`
	Voice            VoiceData          `json:"voice"`
	VoiceApplied     bool               `json:"voice_applied"`
	Videos           []VideoItem        `json:"videos"`
	Merge            MergeResult        `json:"merge"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// DTOs for API requests and responses

type SelectBrandRequest struct {
	BrandName    string  `json:"brand_name" validate:"required,max=100"`
	BrandConcept *string `json:"brand_concept,omitempty" validate:"omitempty,max=2000"`
	UserPrompt   *string `json:"user_prompt,omitempty" validate:"omitempty,max=4000"`
	ProductImage *string `json:"product_image,omitempty"`
}

type ConfirmScenarioRequest struct {
	Scenario *string `json:"scenario,omitempty" validate:"omitempty,max=20000"`
}

type GenerateTimelineRequest struct {
	VideoDurationSec *int `json:"video_duration_sec,omitempty" validate:"omitempty,min=5,max=300"`
}

type UpdateSceneRequest struct {
	Scene           *string          `json:"scene,omitempty"`
	Action          *string          `json:"action,omitempty"`
	Dialogue        *string          `json:"dialogue,omitempty"`
	VoiceType       *VoiceType       `json:"voice_type,omitempty" validate:"omitempty,oneof=narration gigi"`
	T2IPrompt       *T2IPrompt       `json:"t2i_prompt,omitempty"`
	ImageEditPrompt *ImageEditPrompt `json:"image_edit_prompt,omitempty"`
	HairReference   *string          `json:"hair_reference,omitempty"`
	OutfitReference *string          `json:"outfit_reference,omitempty"`
	HairText        *string          `json:"hair_text,omitempty"`
	OutfitText      *string          `json:"outfit_text,omitempty"`
	MakeupReference *string          `json:"makeup_reference,omitempty"`
	MakeupText      *string          `json:"makeup_text,omitempty"`
}

type ApplyVoiceRequest struct {
	Stability       float64  `json:"stability" validate:"gte=0,lte=1"`
	SimilarityBoost float64  `json:"similarity_boost" validate:"gte=0,lte=1"`
	Style           *float64 `json:"style,omitempty" validate:"omitempty,gte=0,lte=1"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
	Language        string   `json:"language" validate:"required"`
	Emotion         string   `json:"emotion" validate:"required"`
	Speed           float64  `json:"speed" validate:"gt=0,lte=4"`
	Pitch           float64  `json:"pitch" validate:"gt=0,lte=4"`
	CloneVoiceFile  *string  `json:"clone_voice_file,omitempty"`
}

type CreateSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Step      Step      `json:"step"`
}

type JobAcceptedResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord tracks one queued long-running operation.
type JobRecord struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	SessionID  uuid.UUID  `json:"session_id"`
	SceneIndex *int       `json:"scene_index,omitempty"`
	Status     JobStatus  `json:"status"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
