package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"ugcstudio/internal/model/generation"
	"ugcstudio/internal/pkg/jobs"
)

// FrameResult 截帧任务查询结果
type FrameResult struct {
	RequestID string `json:"request_id"`
	Completed bool   `json:"completed"`
	Failed    bool   `json:"failed"`
	FrameURL  string `json:"frame_url,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// LipSyncResult 口型同步任务查询结果
type LipSyncResult struct {
	JobID     string `json:"job_id"`
	Completed bool   `json:"completed"`
	Failed    bool   `json:"failed"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CombineResult 合成任务查询结果
type CombineResult struct {
	RequestID    string `json:"request_id"`
	Completed    bool   `json:"completed"`
	Failed       bool   `json:"failed"`
	VideoURL     string `json:"video_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

func sceneStep(k int) string { return "scene:" + strconv.Itoa(k) }
func frameStep(k int) string { return "frame:" + strconv.Itoa(k) }
func lipSyncStep(i int) string { return "lipsync:" + strconv.Itoa(i) }
func combineStep() string { return "combine" }

// ---------------------------------------------------------------------------
// 场景

// SubmitNextScene 以截取的末帧为首帧提交第 sceneNumber 个场景
// 该场景已提交过时直接返回已有任务ID
func (o *Orchestrator) SubmitNextScene(ctx context.Context, generationID, frameURL string, sceneNumber int) (string, error) {
	rec, err := o.repo.FindByID(ctx, generationID)
	if err != nil {
		return "", o.notFound(err)
	}
	if rec.Status.Is(generation.KindFailed) {
		return "", ErrGenerationFailed
	}
	if sceneNumber < 2 || sceneNumber > rec.TotalScenes {
		return "", invalid("scene_number", fmt.Sprintf("must be between 2 and %d", rec.TotalScenes))
	}
	if len(rec.SceneTaskIDs) >= sceneNumber {
		return rec.SceneTaskIDs[sceneNumber-1], nil
	}
	if sceneNumber != rec.CurrentScene+1 || !rec.Status.Is(generation.KindExtractingFrame) {
		return "", fmt.Errorf("%w: scene %d cannot start while %s", ErrInvalidState, sceneNumber, rec.Status)
	}
	if frameURL == "" {
		frameURL = rec.LastFrameURL
	}
	if frameURL == "" {
		return "", invalid("frame_url", "is required")
	}
	return o.submitScene(ctx, generationID, sceneNumber, frameURL)
}

// submitScene 提交第 k 个场景；k>1 时 frameURL 为上一场景末帧
func (o *Orchestrator) submitScene(ctx context.Context, genID string, k int, frameURL string) (string, error) {
	var jobID string
	err := o.guarded(ctx, genID, sceneStep(k), func() error {
		rec, err := o.repo.FindByID(ctx, genID)
		if err != nil {
			return o.notFound(err)
		}
		if len(rec.SceneTaskIDs) >= k {
			jobID = rec.SceneTaskIDs[k-1]
			return nil
		}
		if rec.Status.Terminal() {
			return ErrGenerationFailed
		}
		if len(rec.SceneTaskIDs) != k-1 {
			return fmt.Errorf("%w: scene %d submitted out of order", ErrInvalidState, k)
		}

		in := jobs.SceneInput{
			AspectRatio:  rec.AspectRatio,
			Language:     rec.Language,
			Continuation: k > 1,
		}
		in.Prompt = BuildScenePrompt(rec.SceneScript(k-1), rec.ProductImageURL != "", in.Continuation)
		if k == 1 {
			in.ImageURLs = []string{rec.AvatarURL}
			if rec.ProductImageURL != "" {
				in.ImageURLs = append(in.ImageURLs, rec.ProductImageURL)
			}
		} else {
			if frameURL == "" {
				return invalid("frame_url", "is required for continuation scenes")
			}
			in.ImageURLs = []string{frameURL}
		}

		submitted, err := o.clients.Scene.Submit(ctx, in)
		if err != nil {
			return err
		}

		rec, err = o.mutate(ctx, genID, func(g *generation.Generation) bool {
			if len(g.SceneTaskIDs) != k-1 {
				return false
			}
			g.SceneTaskIDs = append(g.SceneTaskIDs, submitted)
			g.CurrentTaskID = submitted
			g.Status = generation.GeneratingScene(k)
			if k > 1 {
				g.LastFrameURL = frameURL
			}
			return true
		})
		if err != nil {
			return err
		}
		jobID = submitted
		o.remember(ctx, rec)

		log.Info().
			Str("generation_id", genID).
			Int("scene", k).
			Str("job_id", submitted).
			Msg("scene submitted")
		return nil
	})
	return jobID, err
}

// ---------------------------------------------------------------------------
// 截帧

// RequestFrameExtraction 对上一场景请求截取最后一帧
// previousSceneURL 为空时取最近完成的场景；同一来源已提交过时返回已有任务ID
func (o *Orchestrator) RequestFrameExtraction(ctx context.Context, generationID, previousSceneURL string) (string, error) {
	rec, err := o.repo.FindByID(ctx, generationID)
	if err != nil {
		return "", o.notFound(err)
	}
	if rec.Status.Is(generation.KindFailed) {
		return "", ErrGenerationFailed
	}
	if previousSceneURL == "" && len(rec.SceneURLs) > 0 {
		previousSceneURL = rec.SceneURLs[len(rec.SceneURLs)-1]
	}
	if previousSceneURL == "" {
		return "", invalid("previous_scene_url", "is required")
	}
	if !rec.HasSceneURL(previousSceneURL) {
		return "", invalid("previous_scene_url", "is not a completed scene of this generation")
	}
	if rec.FrameSourceURL == previousSceneURL && rec.FrameExtractionRequestID != "" {
		return rec.FrameExtractionRequestID, nil
	}
	if !rec.Status.Is(generation.KindExtractingFrame) {
		return "", fmt.Errorf("%w: frame extraction not expected while %s", ErrInvalidState, rec.Status)
	}
	return o.requestFrame(ctx, generationID, previousSceneURL)
}

func (o *Orchestrator) requestFrame(ctx context.Context, genID, sourceURL string) (string, error) {
	var requestID string
	rec, err := o.repo.FindByID(ctx, genID)
	if err != nil {
		return "", o.notFound(err)
	}
	err = o.guarded(ctx, genID, frameStep(rec.CurrentScene), func() error {
		rec, err := o.repo.FindByID(ctx, genID)
		if err != nil {
			return o.notFound(err)
		}
		if rec.FrameSourceURL == sourceURL && rec.FrameExtractionRequestID != "" {
			requestID = rec.FrameExtractionRequestID
			return nil
		}
		if !rec.Status.Is(generation.KindExtractingFrame) {
			return fmt.Errorf("%w: frame extraction not expected while %s", ErrInvalidState, rec.Status)
		}

		submitted, err := o.clients.Frame.Submit(ctx, jobs.FrameInput{VideoURL: sourceURL})
		if err != nil {
			return err
		}
		_, err = o.mutate(ctx, genID, func(g *generation.Generation) bool {
			if !g.Status.Is(generation.KindExtractingFrame) {
				return false
			}
			g.FrameExtractionRequestID = submitted
			g.FrameSourceURL = sourceURL
			g.LastFrameURL = ""
			return true
		})
		if err != nil {
			return err
		}
		requestID = submitted
		return nil
	})
	return requestID, err
}

// PollFrameExtraction 查询截帧任务
// generationID 不为空时把结果写入记录，截帧失败会使生成失败；任务失败返回 *jobs.JobFailedError
func (o *Orchestrator) PollFrameExtraction(ctx context.Context, requestID, generationID string) (*FrameResult, error) {
	var (
		res *FrameResult
		err error
	)
	if generationID == "" {
		res, err = o.pollFrame(ctx, requestID)
	} else {
		res, err = o.checkFrame(ctx, generationID, requestID)
	}
	if err != nil {
		return nil, err
	}
	if res.Failed {
		return nil, &jobs.JobFailedError{Provider: "frame-extractor", JobID: requestID, Detail: res.Detail}
	}
	return res, nil
}

func (o *Orchestrator) pollFrame(ctx context.Context, requestID string) (*FrameResult, error) {
	st, err := o.clients.Frame.PollStatus(ctx, requestID)
	if err != nil {
		return nil, err
	}
	res := &FrameResult{RequestID: requestID, Detail: st.Detail}
	switch st.State {
	case jobs.StateSucceeded:
		url, err := o.clients.Frame.FetchResult(ctx, requestID)
		if err != nil {
			return nil, err
		}
		res.Completed = true
		res.FrameURL = url
	case jobs.StateFailed:
		res.Failed = true
	}
	return res, nil
}

func (o *Orchestrator) checkFrame(ctx context.Context, genID, requestID string) (*FrameResult, error) {
	res, err := o.pollFrame(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !res.Completed && !res.Failed {
		return res, nil
	}

	_, err = o.mutate(ctx, genID, func(g *generation.Generation) bool {
		if !g.Status.Is(generation.KindExtractingFrame) || g.FrameExtractionRequestID != requestID {
			return false
		}
		if res.Failed {
			g.Status = generation.Failed()
			g.ErrorMessage = fmt.Sprintf("frame extraction after scene %d failed: %s", g.CurrentScene, res.Detail)
			return true
		}
		if g.LastFrameURL == res.FrameURL {
			return false
		}
		g.LastFrameURL = res.FrameURL
		return true
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// 口型同步

// RequestLipSync 为第 sceneIndex 个场景（从 0 开始）提交口型同步
// 脚本以创建时切分的 scene_scripts 为准；已提交过时返回已有任务ID
func (o *Orchestrator) RequestLipSync(ctx context.Context, generationID string, sceneIndex int, videoURL, script string) (string, error) {
	rec, err := o.repo.FindByID(ctx, generationID)
	if err != nil {
		return "", o.notFound(err)
	}
	if rec.Status.Is(generation.KindFailed) {
		return "", ErrGenerationFailed
	}
	if sceneIndex < 0 || sceneIndex >= len(rec.SceneURLs) {
		return "", invalid("scene_index", fmt.Sprintf("scene %d has not completed yet", sceneIndex))
	}
	if existing := rec.SyncTaskID(sceneIndex); existing != "" {
		return existing, nil
	}
	if videoURL != "" && videoURL != rec.SceneURLs[sceneIndex] {
		log.Warn().Str("generation_id", generationID).Int("scene_index", sceneIndex).
			Msg("lip-sync video url differs from recorded scene, using recorded scene")
	}
	if script != "" && script != rec.SceneScript(sceneIndex) {
		log.Warn().Str("generation_id", generationID).Int("scene_index", sceneIndex).
			Msg("lip-sync script differs from stored scene script, using stored script")
	}
	return o.submitLipSync(ctx, generationID, sceneIndex)
}

func (o *Orchestrator) submitLipSync(ctx context.Context, genID string, index int) (string, error) {
	var jobID string
	err := o.guarded(ctx, genID, lipSyncStep(index), func() error {
		rec, err := o.repo.FindByID(ctx, genID)
		if err != nil {
			return o.notFound(err)
		}
		if existing := rec.SyncTaskID(index); existing != "" {
			jobID = existing
			return nil
		}
		if rec.Status.Terminal() {
			return ErrGenerationFailed
		}
		if index >= len(rec.SceneURLs) {
			return invalid("scene_index", "scene has not completed yet")
		}

		script := rec.SceneScript(index)
		if script == "" {
			// 没有台词的场景无需口型同步，直接记为已结论
			_, err := o.mutate(ctx, genID, func(g *generation.Generation) bool {
				if g.SceneSettled(index) {
					return false
				}
				g.EnsureSlots()
				g.LipSyncErrors[index] = "empty scene script"
				settleLipSync(g)
				return true
			})
			return err
		}

		submitted, err := o.clients.LipSync.Submit(ctx, jobs.LipSyncInput{
			VideoURL: rec.SceneURLs[index],
			Script:   script,
			VoiceID:  o.voiceFor(rec.AvatarID),
		})
		if err != nil {
			return err
		}
		_, err = o.mutate(ctx, genID, func(g *generation.Generation) bool {
			if g.SyncTaskID(index) != "" {
				return false
			}
			g.EnsureSlots()
			g.SyncTaskIDs[index] = submitted
			return true
		})
		if err != nil {
			return err
		}
		jobID = submitted

		log.Info().
			Str("generation_id", genID).
			Int("scene_index", index).
			Str("job_id", submitted).
			Msg("lip-sync submitted")
		return nil
	})
	return jobID, err
}

// PollLipSync 查询口型同步任务，成功或失败都按场景下标写入记录
// 生成已失败时拒绝；已完成时只返回查询结果，不再修改记录
func (o *Orchestrator) PollLipSync(ctx context.Context, jobID, generationID string, sceneIndex int) (*LipSyncResult, error) {
	if generationID == "" {
		return o.pollLipSync(ctx, jobID)
	}

	rec, err := o.repo.FindByID(ctx, generationID)
	if err != nil {
		return nil, o.notFound(err)
	}
	if rec.Status.Is(generation.KindFailed) {
		return nil, ErrGenerationFailed
	}
	if sceneIndex < 0 || sceneIndex >= rec.TotalScenes {
		return nil, invalid("scene_index", fmt.Sprintf("must be between 0 and %d", rec.TotalScenes-1))
	}
	if rec.Status.Terminal() {
		return o.pollLipSync(ctx, jobID)
	}
	if stored := rec.SyncTaskID(sceneIndex); stored != "" && stored != jobID {
		return nil, invalid("job_id", "does not match the lip-sync job recorded for this scene")
	}
	return o.checkLipSync(ctx, generationID, sceneIndex, jobID)
}

func (o *Orchestrator) pollLipSync(ctx context.Context, jobID string) (*LipSyncResult, error) {
	st, err := o.clients.LipSync.PollStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res := &LipSyncResult{JobID: jobID}
	switch st.State {
	case jobs.StateSucceeded:
		url, err := o.clients.LipSync.FetchResult(ctx, jobID)
		if err != nil {
			return nil, err
		}
		res.Completed = true
		res.OutputURL = url
	case jobs.StateFailed:
		res.Failed = true
		res.Error = st.Detail
	}
	return res, nil
}

func (o *Orchestrator) checkLipSync(ctx context.Context, genID string, index int, jobID string) (*LipSyncResult, error) {
	res, err := o.pollLipSync(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !res.Completed && !res.Failed {
		return res, nil
	}

	_, err = o.mutate(ctx, genID, func(g *generation.Generation) bool {
		// 合成已提交后，迟到的结果不再改变合成输入
		if g.Status.Terminal() || g.Status.Is(generation.KindCombining) {
			return false
		}
		if stored := g.SyncTaskID(index); stored != "" && stored != jobID {
			return false
		}
		g.EnsureSlots()
		changed := false
		if g.SyncTaskIDs[index] == "" {
			g.SyncTaskIDs[index] = jobID
			changed = true
		}
		if res.Completed && g.SyncedSceneURLs[index] != res.OutputURL {
			g.SyncedSceneURLs[index] = res.OutputURL
			g.LipSyncErrors[index] = ""
			changed = true
		}
		if res.Failed && g.SyncedSceneURLs[index] == "" && g.LipSyncErrors[index] == "" {
			detail := res.Error
			if detail == "" {
				detail = "lip-sync failed"
			}
			g.LipSyncErrors[index] = detail
			changed = true
		}
		if settleLipSync(g) {
			changed = true
		}
		return changed
	})
	if err != nil {
		return nil, err
	}

	if res.Failed {
		log.Warn().Str("generation_id", genID).Int("scene_index", index).Str("job_id", jobID).
			Str("error", res.Error).Msg("lip-sync failed, scene will use original video")
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// 合成

// RequestCombine 合成所有场景
// 优先使用口型同步结果，缺失时回退到原始场景；只允许在 ready_to_combine 状态提交
func (o *Orchestrator) RequestCombine(ctx context.Context, generationID string) (string, error) {
	rec, err := o.repo.FindByID(ctx, generationID)
	if err != nil {
		return "", o.notFound(err)
	}
	if rec.Status.Is(generation.KindFailed) {
		return "", ErrGenerationFailed
	}
	if rec.CombineRequestID != "" &&
		(rec.Status.Is(generation.KindCombining) || rec.Status.Is(generation.KindCompleted)) {
		return rec.CombineRequestID, nil
	}
	if rec.Status.Is(generation.KindLipSyncing) {
		if rec, err = o.settleLipSyncs(ctx, generationID); err != nil {
			return "", err
		}
	}
	if len(rec.CombineURLs()) < 2 {
		return "", ErrInsufficientScenes
	}
	if !rec.Status.Is(generation.KindReadyToCombine) {
		return "", fmt.Errorf("%w: combine not allowed while %s", ErrInvalidState, rec.Status)
	}

	var requestID string
	err = o.guarded(ctx, generationID, combineStep(), func() error {
		rec, err := o.repo.FindByID(ctx, generationID)
		if err != nil {
			return o.notFound(err)
		}
		if rec.CombineRequestID != "" {
			requestID = rec.CombineRequestID
			return nil
		}
		if !rec.Status.Is(generation.KindReadyToCombine) {
			return fmt.Errorf("%w: combine not allowed while %s", ErrInvalidState, rec.Status)
		}
		urls := rec.CombineURLs()
		if len(urls) < 2 {
			return ErrInsufficientScenes
		}

		submitted, err := o.clients.Compose.Submit(ctx, jobs.ComposeInput{
			SceneURLs:    urls,
			SceneSeconds: generation.SceneSeconds,
		})
		if err != nil {
			return err
		}
		_, err = o.mutate(ctx, generationID, func(g *generation.Generation) bool {
			if g.CombineRequestID != "" || !g.Status.Is(generation.KindReadyToCombine) {
				return false
			}
			g.CombineRequestID = submitted
			g.Status = generation.CombiningVideos()
			return true
		})
		if err != nil {
			return err
		}
		requestID = submitted

		log.Info().
			Str("generation_id", generationID).
			Str("job_id", submitted).
			Int("scenes", len(urls)).
			Msg("combine submitted")
		return nil
	})
	return requestID, err
}

// PollCombine 查询合成任务，成功后写入成片并完成生成
// generationID 为空时按合成任务ID查找记录；合成失败时生成失败并返回 *jobs.JobFailedError
func (o *Orchestrator) PollCombine(ctx context.Context, requestID, generationID string) (*CombineResult, error) {
	var (
		rec *generation.Generation
		err error
	)
	if generationID != "" {
		rec, err = o.repo.FindByID(ctx, generationID)
	} else {
		rec, err = o.repo.FindByCombineRequestID(ctx, requestID)
	}
	if err != nil {
		return nil, o.notFound(err)
	}
	if rec.Status.Is(generation.KindFailed) {
		return nil, ErrGenerationFailed
	}
	if rec.CombineRequestID == "" || rec.CombineRequestID != requestID {
		return nil, invalid("request_id", "does not match the combine job recorded for this generation")
	}
	res, err := o.advanceCombine(ctx, rec, requestID)
	if err != nil {
		return nil, err
	}
	if res.Failed {
		return nil, &jobs.JobFailedError{Provider: "composer", JobID: requestID, Detail: res.Detail}
	}
	return res, nil
}

func (o *Orchestrator) advanceCombine(ctx context.Context, rec *generation.Generation, requestID string) (*CombineResult, error) {
	res := &CombineResult{RequestID: requestID}
	if rec.Status.Is(generation.KindCompleted) && rec.FinalVideoURL != "" {
		res.Completed = true
		res.VideoURL = rec.FinalVideoURL
		res.ThumbnailURL = rec.ThumbnailURL
		return res, nil
	}
	if requestID == "" {
		return res, nil
	}

	st, err := o.clients.Compose.PollStatus(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch st.State {
	case jobs.StateFailed:
		res.Failed = true
		res.Detail = st.Detail
		_, err := o.mutate(ctx, rec.ID, func(g *generation.Generation) bool {
			if !g.Status.Is(generation.KindCombining) || g.CombineRequestID != requestID {
				return false
			}
			g.Status = generation.Failed()
			g.ErrorMessage = "combine failed: " + st.Detail
			return true
		})
		return res, err

	case jobs.StateSucceeded:
		out, err := o.clients.Compose.FetchResult(ctx, requestID)
		if err != nil {
			if errors.Is(err, jobs.ErrResultNotReady) {
				log.Error().Str("generation_id", rec.ID).Str("job_id", requestID).Msg("combine result not ready after success")
			}
			return nil, err
		}
		g, err := o.mutate(ctx, rec.ID, func(g *generation.Generation) bool {
			if g.FinalVideoURL != "" || !g.Status.Is(generation.KindCombining) || g.CombineRequestID != requestID {
				return false
			}
			g.FinalVideoURL = out.VideoURL
			g.ThumbnailURL = out.ThumbnailURL
			g.Status = generation.Completed()
			return true
		})
		if err != nil {
			return nil, err
		}
		res.Completed = true
		res.VideoURL = g.FinalVideoURL
		res.ThumbnailURL = g.ThumbnailURL
		return res, nil

	default:
		return res, nil
	}
}
