package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobarin/gigi/internal/metrics"
	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/services"
	"github.com/bobarin/gigi/internal/storage"
	"github.com/bobarin/gigi/internal/store"
	"github.com/google/uuid"
)

const stageCompose = "compose"

// ComposeSceneImage builds the still for one storyboard scene: a background, a
// styled character, then an edit call that places the character on the background.
// The brand's product image, when set, is a reference for the character call.
// Only the final composite is stored; any failure leaves the scene image unchanged.
func (o *Orchestrator) ComposeSceneImage(ctx context.Context, sessionID uuid.UUID, index int) (models.TimelineItem, error) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return models.TimelineItem{}, err
	}
	if index < 0 || index >= len(sess.Timeline) {
		return models.TimelineItem{}, store.ErrSceneNotFound
	}

	item := sess.Timeline[index]
	sid := sess.RemoteSessionID
	stamp := o.now().UnixMilli()
	logger := o.log.With().Str("session", sessionID.String()).Int("scene", index).Logger()

	start := time.Now()
	var product *string
	if sess.Brand != nil {
		product = sess.Brand.ProductImage
	}

	url, err := o.composeImage(ctx, sid, index, stamp, item, product)
	metrics.ObserveStage(stageCompose, start, err)
	if err != nil {
		logger.Error().Err(err).Msg("scene image composition failed")
		return item, fmt.Errorf("compose scene %d: %w", index, err)
	}

	updated, err := o.store.SetSceneImage(sessionID, index, url)
	if err != nil {
		return item, err
	}

	logger.Info().Str("image", url).Msg("scene image composed")
	return updated, nil
}

func (o *Orchestrator) composeImage(ctx context.Context, sid string, index int, stamp int64, item models.TimelineItem, product *string) (string, error) {
	bgFile, err := o.svc.Image.GenerateBackground(ctx, services.BackgroundRequest{
		SessionID:      sid,
		Prompt:         backgroundPrompt(item),
		OutputFilename: fmt.Sprintf("scene_%d_bg_%d.png", index, stamp),
	})
	if err != nil {
		return "", fmt.Errorf("background: %w", err)
	}
	if err := o.throttle.Wait(ctx, PauseAfterBackground); err != nil {
		return "", err
	}

	hair, err := o.fetchOptional(ctx, item.HairReference, fmt.Sprintf("hair_%d.png", index))
	if err != nil {
		return "", fmt.Errorf("hair reference: %w", err)
	}
	outfit, err := o.fetchOptional(ctx, item.OutfitReference, fmt.Sprintf("outfit_%d.png", index))
	if err != nil {
		return "", fmt.Errorf("outfit reference: %w", err)
	}
	makeup, err := o.fetchOptional(ctx, item.MakeupReference, fmt.Sprintf("makeup_%d.png", index))
	if err != nil {
		return "", fmt.Errorf("makeup reference: %w", err)
	}
	productImage, err := o.fetchOptional(ctx, product, "product.png")
	if err != nil {
		return "", fmt.Errorf("product image: %w", err)
	}

	charFile, err := o.svc.Image.GenerateCharacter(ctx, services.CharacterRequest{
		SessionID:      sid,
		Prompt:         characterPrompt(item),
		OutputFilename: fmt.Sprintf("scene_%d_character_%d.png", index, stamp),
		HairStyle:      hair,
		OutfitStyle:    outfit,
		MakeupStyle:    makeup,
		Product:        productImage,
	})
	if err != nil {
		return "", fmt.Errorf("character: %w", err)
	}
	if err := o.throttle.Wait(ctx, PauseAfterCharacter); err != nil {
		return "", err
	}

	finalFile, err := o.svc.Image.Edit(ctx, services.EditRequest{
		SessionID:          sid,
		Prompt:             editPrompt(item),
		BackgroundFilename: bgFile,
		CharacterFilename:  charFile,
		OutputFilename:     fmt.Sprintf("scene_%d_%d.png", index, stamp),
	})
	if err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}
	if err := o.throttle.Wait(ctx, PauseAfterEdit); err != nil {
		return "", err
	}

	return o.svc.Image.OutputURL(sid, finalFile), nil
}

func (o *Orchestrator) fetchOptional(ctx context.Context, source *string, filename string) (*storage.Asset, error) {
	if source == nil || strings.TrimSpace(*source) == "" {
		return nil, nil
	}
	return o.svc.Fetcher.Fetch(ctx, *source, filename)
}

func backgroundPrompt(item models.TimelineItem) string {
	if item.T2IPrompt == nil || item.T2IPrompt.Background == "" {
		return item.Scene
	}
	return joinPrompt(item.T2IPrompt.Background, item.T2IPrompt.CameraAngle)
}

func characterPrompt(item models.TimelineItem) string {
	pose := item.Action
	if item.T2IPrompt != nil && item.T2IPrompt.CharacterPoseAndGaze != "" {
		pose = item.T2IPrompt.CharacterPoseAndGaze
	}
	if pose == "" {
		pose = services.DefaultI2VPrompt
	}

	parts := []string{"GIGI, a friendly virtual beauty influencer", pose}
	if item.HairText != nil && *item.HairText != "" {
		parts = append(parts, "hair: "+*item.HairText)
	}
	if item.OutfitText != nil && *item.OutfitText != "" {
		parts = append(parts, "outfit: "+*item.OutfitText)
	}
	if item.MakeupText != nil && *item.MakeupText != "" {
		parts = append(parts, "makeup: "+*item.MakeupText)
	}
	if item.T2IPrompt != nil && item.T2IPrompt.Product != "" {
		parts = append(parts, "holding "+item.T2IPrompt.Product)
	}
	return joinPrompt(parts...)
}

func editPrompt(item models.TimelineItem) string {
	parts := []string{"Place the character from image 2 naturally into the background of image 1, matching lighting and perspective"}
	if p := item.ImageEditPrompt; p != nil {
		if p.PoseChange != "" {
			parts = append(parts, "pose: "+p.PoseChange)
		}
		if p.GazeChange != "" {
			parts = append(parts, "gaze: "+p.GazeChange)
		}
		if p.Expression != "" {
			parts = append(parts, "expression: "+p.Expression)
		}
		if p.AdditionalEdits != "" {
			parts = append(parts, p.AdditionalEdits)
		}
	}
	return joinPrompt(parts...)
}

func joinPrompt(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
