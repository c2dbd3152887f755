package store

import "github.com/bobarin/gigi/internal/models"

// Transition is a pure reducer over one scene record.
type Transition func(models.VideoItem) models.VideoItem

// Stage names a pipeline sub-stage that can fail.
type Stage string

const (
	StageI2V     Stage = "i2v"
	StageAudio   Stage = "audio"
	StageLipsync Stage = "lipsync"
)

// Begin starts a fresh run: every stage back to pending, i2v processing.
func Begin(v models.VideoItem) models.VideoItem {
	v.Status = models.SceneStatusGenerating
	v.I2VStatus = models.StageStatusProcessing
	v.AudioStatus = models.StageStatusPending
	v.LipsyncStatus = models.StageStatusPending
	v.I2VVideoURL = nil
	v.MMAudioVideoURL = nil
	v.TTSAudioURL = nil
	v.FinalVideoURL = nil
	v.Error = nil
	return v
}

// I2VDone records the animated clip and moves on to background audio.
func I2VDone(url string) Transition {
	return func(v models.VideoItem) models.VideoItem {
		v.I2VStatus = models.StageStatusDone
		v.I2VVideoURL = &url
		v.AudioStatus = models.StageStatusProcessing
		return v
	}
}

// AudioDone records the clip with background sound and moves on to lip-sync.
func AudioDone(url string) Transition {
	return func(v models.VideoItem) models.VideoItem {
		v.AudioStatus = models.StageStatusDone
		v.MMAudioVideoURL = &url
		v.LipsyncStatus = models.StageStatusProcessing
		return v
	}
}

func SpeechDone(url string) Transition {
	return func(v models.VideoItem) models.VideoItem {
		v.TTSAudioURL = &url
		return v
	}
}

// Complete finishes the run. finalURL equals the mmaudio URL for scenes without dialogue.
func Complete(finalURL string) Transition {
	return func(v models.VideoItem) models.VideoItem {
		v.Status = models.SceneStatusCompleted
		v.LipsyncStatus = models.StageStatusDone
		v.FinalVideoURL = &finalURL
		v.Error = nil
		return v
	}
}

// Fail marks the failing stage and the scene as errored. Other stages keep their status.
func Fail(stage Stage, msg string) Transition {
	return func(v models.VideoItem) models.VideoItem {
		switch stage {
		case StageI2V:
			v.I2VStatus = models.StageStatusError
		case StageAudio:
			v.AudioStatus = models.StageStatusError
		case StageLipsync:
			v.LipsyncStatus = models.StageStatusError
		}
		v.Status = models.SceneStatusError
		v.Error = &msg
		return v
	}
}
