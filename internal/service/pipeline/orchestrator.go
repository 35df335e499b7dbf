// Package pipeline 多场景视频生成流水线
//
// 没有后台 worker：所有推进都发生在调用方的状态轮询或显式步骤请求中。
// 每次推进都从记录仓库重新读取，外部提交前先获取持久化的步骤锁，
// 一个状态迁移涉及的所有字段在一次比较并交换更新中写入。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"ugcstudio/internal/model/generation"
	"ugcstudio/internal/pkg/id"
	"ugcstudio/internal/pkg/jobs"
	"ugcstudio/internal/pkg/metrics"
	genrepo "ugcstudio/internal/repository/generation"
)

// maxUpdateAttempts 版本冲突时重新读取并重试的次数
const maxUpdateAttempts = 3

// Clients 流水线依赖的外部任务客户端
type Clients struct {
	Scene   jobs.SceneClient
	Frame   jobs.FrameClient
	LipSync jobs.LipSyncClient
	Compose jobs.ComposeClient
}

// Options 流水线参数
type Options struct {
	DefaultAspectRatio string
	DefaultLanguage    string
	DefaultDuration    int
	MaxDuration        int
	StepLockTTL        time.Duration
	// LipSyncTimeout 所有场景生成后等待口型同步的上限
	LipSyncTimeout time.Duration
	// Voices avatar_id -> 口型同步音色，未配置时使用客户端默认音色
	Voices map[string]string
}

func (o *Options) applyDefaults() {
	if o.DefaultAspectRatio == "" {
		o.DefaultAspectRatio = "9:16"
	}
	if o.DefaultLanguage == "" {
		o.DefaultLanguage = "bg"
	}
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = generation.SceneSeconds
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 64
	}
	if o.StepLockTTL <= 0 {
		o.StepLockTTL = 2 * time.Minute
	}
	if o.LipSyncTimeout <= 0 {
		o.LipSyncTimeout = 10 * time.Minute
	}
}

// Orchestrator 流水线状态机
type Orchestrator struct {
	repo     genrepo.GenerationRepository
	clients  Clients
	cache    TaskCache
	metrics  *metrics.Metrics
	opts     Options
	validate *validator.Validate
	recovery singleflight.Group
	now      func() time.Time
}

// New 创建流水线
func New(repo genrepo.GenerationRepository, clients Clients, cache TaskCache, m *metrics.Metrics, opts Options) *Orchestrator {
	opts.applyDefaults()
	if cache == nil {
		cache = NewMemoryTaskCache(0)
	}
	return &Orchestrator{
		repo:     repo,
		clients:  clients,
		cache:    cache,
		metrics:  m,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// StartRequest 发起生成
type StartRequest struct {
	Script          string `validate:"required"`
	AvatarURL       string `validate:"required,url"`
	AvatarID        string
	AspectRatio     string `validate:"omitempty,oneof=9:16 16:9 1:1"`
	Language        string `validate:"omitempty,min=2,max=8"`
	Duration        int    `validate:"gte=0"`
	ProductImageURL string `validate:"omitempty,url"`
	ProductName     string
	OwnerID         string
}

// StartResult 发起生成结果
type StartResult struct {
	GenerationID string   `json:"generation_id"`
	CurrentJobID string   `json:"task_id"`
	TotalScenes  int      `json:"total_scenes"`
	SceneScripts []string `json:"scene_scripts"`
}

// StatusResult 状态轮询结果
type StatusResult struct {
	GenerationID    string            `json:"generation_id"`
	CurrentTaskID   string            `json:"task_id,omitempty"`
	Status          generation.Status `json:"status"`
	Progress        int               `json:"progress"`
	VideoURL        string            `json:"video_url,omitempty"`
	ThumbnailURL    string            `json:"thumbnail_url,omitempty"`
	SceneURLs       []string          `json:"scene_urls"`
	SyncedSceneURLs []string          `json:"synced_scene_urls"`
	CurrentScene    int               `json:"current_scene"`
	TotalScenes     int               `json:"total_scenes"`
	FrameRequestID  string            `json:"frame_request_id,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// StartGeneration 创建生成记录并提交第 1 个场景
// 记录创建成功但场景提交失败时，返回带 GenerationID 的结果和错误，记录停留在 pending，下一次轮询会重新提交
func (o *Orchestrator) StartGeneration(ctx context.Context, req StartRequest) (*StartResult, error) {
	req.Script = strings.TrimSpace(req.Script)
	req.AvatarURL = strings.TrimSpace(req.AvatarURL)
	if req.Duration == 0 {
		req.Duration = o.opts.DefaultDuration
	}
	if err := o.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}
	if req.Duration > o.opts.MaxDuration {
		return nil, invalid("duration", fmt.Sprintf("must not exceed %d seconds", o.opts.MaxDuration))
	}
	if req.AspectRatio == "" {
		req.AspectRatio = o.opts.DefaultAspectRatio
	}
	if req.Language == "" {
		req.Language = o.opts.DefaultLanguage
	}

	total := generation.SceneCount(req.Duration)
	rec := &generation.Generation{
		ID:              id.New(),
		Script:          req.Script,
		SceneScripts:    SplitScript(req.Script, req.Duration),
		AvatarURL:       req.AvatarURL,
		AvatarID:        req.AvatarID,
		ProductImageURL: req.ProductImageURL,
		ProductName:     req.ProductName,
		AspectRatio:     req.AspectRatio,
		Language:        req.Language,
		Duration:        req.Duration,
		TotalScenes:     total,
		Status:          generation.Pending(),
	}
	if req.OwnerID != "" {
		owner := req.OwnerID
		rec.UserID = &owner
	}
	if err := o.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	log.Info().
		Str("generation_id", rec.ID).
		Int("duration", rec.Duration).
		Int("total_scenes", total).
		Bool("anonymous", rec.UserID == nil).
		Msg("generation created")

	result := &StartResult{GenerationID: rec.ID, TotalScenes: total, SceneScripts: rec.SceneScripts}

	jobID, err := o.submitScene(ctx, rec.ID, 1, "")
	if err != nil {
		o.remember(ctx, rec)
		return result, fmt.Errorf("submit scene 1: %w", err)
	}
	result.CurrentJobID = jobID
	return result, nil
}

// PollStatus 查询状态并推进流水线
// key 为调用方持有的任务ID（或生成ID），generationID 可为空，为空时通过恢复层定位
func (o *Orchestrator) PollStatus(ctx context.Context, key, generationID string) (*StatusResult, error) {
	rec, err := o.load(ctx, key, generationID)
	if err != nil {
		return nil, err
	}

	if err := o.advance(ctx, rec); err != nil {
		return nil, err
	}

	rec, err = o.repo.FindByID(ctx, rec.ID)
	if err != nil {
		return nil, o.notFound(err)
	}
	o.remember(ctx, rec, key)
	return buildStatus(rec), nil
}

// advance 按当前状态执行一步推进
// 关键路径上的服务请求错误原样返回（调用方重试）；旁路步骤失败只记录日志
func (o *Orchestrator) advance(ctx context.Context, rec *generation.Generation) error {
	switch rec.Status.Kind {
	case generation.KindPending:
		o.soft(rec.ID, "submit scene 1", func() error {
			_, err := o.submitScene(ctx, rec.ID, 1, "")
			return err
		})
		return nil

	case generation.KindGeneratingScene:
		if err := o.advanceScene(ctx, rec); err != nil {
			return err
		}

	case generation.KindExtractingFrame:
		o.advanceFrame(ctx, rec)

	case generation.KindLipSyncing:
		o.advanceLipSync(ctx, rec)
		return nil

	case generation.KindCombining:
		_, err := o.advanceCombine(ctx, rec, rec.CombineRequestID)
		return err

	default:
		// ready_to_combine 只等待显式合成请求；终态不再推进
		return nil
	}

	// 场景生成期间补交之前失败的口型同步
	fresh, err := o.repo.FindByID(ctx, rec.ID)
	if err != nil {
		return o.notFound(err)
	}
	if !fresh.Status.Terminal() {
		o.ensureLipSyncs(ctx, fresh)
	}
	return nil
}

// advanceScene generating_scene_k：检查当前场景任务
func (o *Orchestrator) advanceScene(ctx context.Context, rec *generation.Generation) error {
	k := rec.Status.Scene
	jobID := rec.CurrentTaskID
	if jobID == "" || len(rec.SceneTaskIDs) < k {
		log.Warn().Str("generation_id", rec.ID).Int("scene", k).Msg("scene status without a job id")
		return nil
	}

	st, err := o.clients.Scene.PollStatus(ctx, jobID)
	if err != nil {
		return err
	}

	switch st.State {
	case jobs.StateFailed:
		_, err := o.mutate(ctx, rec.ID, func(g *generation.Generation) bool {
			if g.Status != generation.GeneratingScene(k) || g.CurrentTaskID != jobID {
				return false
			}
			g.Status = generation.Failed()
			g.ErrorMessage = fmt.Sprintf("scene %d generation failed: %s", k, st.Detail)
			return true
		})
		return err

	case jobs.StateSucceeded:
		url, err := o.clients.Scene.FetchResult(ctx, jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrResultNotReady) {
				log.Error().Str("generation_id", rec.ID).Str("job_id", jobID).Msg("scene result not ready after success")
			}
			return err
		}
		return o.completeScene(ctx, rec.ID, k, jobID, url)

	default:
		return nil
	}
}

// completeScene 记录场景结果并决定下一步
func (o *Orchestrator) completeScene(ctx context.Context, genID string, k int, jobID, url string) error {
	appended := false
	rec, err := o.mutate(ctx, genID, func(g *generation.Generation) bool {
		appended = false
		// 重复轮询：URL 已记录，不再追加
		if g.HasSceneURL(url) {
			return false
		}
		if g.Status != generation.GeneratingScene(k) || g.CurrentTaskID != jobID {
			return false
		}

		g.SceneURLs = append(g.SceneURLs, url)
		g.CurrentScene = len(g.SceneURLs)
		appended = true

		switch {
		case g.CurrentScene < g.TotalScenes:
			g.Status = generation.ExtractingFrame()
			g.FrameSourceURL = url
			g.FrameExtractionRequestID = ""
			g.LastFrameURL = ""
		case g.TotalScenes == 1:
			g.FinalVideoURL = url
			g.Status = generation.Completed()
		default:
			g.Status = generation.LipSyncingScene(g.TotalScenes)
			deadline := o.now().Add(o.opts.LipSyncTimeout)
			g.LipSyncDeadline = &deadline
		}
		return true
	})
	if err != nil {
		return err
	}
	if !appended {
		return nil
	}

	log.Info().
		Str("generation_id", genID).
		Int("scene", k).
		Str("job_id", jobID).
		Str("scene_url", url).
		Msg("scene completed")

	if rec.TotalScenes > 1 {
		o.soft(genID, "submit lip-sync", func() error {
			_, err := o.submitLipSync(ctx, genID, k-1)
			return err
		})
	}
	if rec.Status.Is(generation.KindExtractingFrame) {
		o.soft(genID, "request frame extraction", func() error {
			_, err := o.requestFrame(ctx, genID, url)
			return err
		})
	}
	return nil
}

// advanceFrame extracting_frame：推进截帧并在成功后提交下一场景
func (o *Orchestrator) advanceFrame(ctx context.Context, rec *generation.Generation) {
	next := rec.CurrentScene + 1

	if rec.LastFrameURL != "" {
		o.soft(rec.ID, "submit next scene", func() error {
			_, err := o.submitScene(ctx, rec.ID, next, rec.LastFrameURL)
			return err
		})
		return
	}

	if rec.FrameExtractionRequestID == "" {
		source := rec.FrameSourceURL
		if source == "" && len(rec.SceneURLs) > 0 {
			source = rec.SceneURLs[len(rec.SceneURLs)-1]
		}
		o.soft(rec.ID, "request frame extraction", func() error {
			_, err := o.requestFrame(ctx, rec.ID, source)
			return err
		})
		return
	}

	res, err := o.checkFrame(ctx, rec.ID, rec.FrameExtractionRequestID)
	if err != nil {
		o.logSoft(rec.ID, "poll frame extraction", err)
		return
	}
	if res.Completed {
		o.soft(rec.ID, "submit next scene", func() error {
			_, err := o.submitScene(ctx, rec.ID, next, res.FrameURL)
			return err
		})
	}
}

// advanceLipSync lip_syncing_scene_k：收集各场景口型同步结果
func (o *Orchestrator) advanceLipSync(ctx context.Context, rec *generation.Generation) {
	o.ensureLipSyncs(ctx, rec)

	for i := 0; i < rec.TotalScenes; i++ {
		if rec.SceneSettled(i) {
			continue
		}
		jobID := rec.SyncTaskID(i)
		if jobID == "" {
			continue
		}
		if _, err := o.checkLipSync(ctx, rec.ID, i, jobID); err != nil {
			o.logSoft(rec.ID, "poll lip-sync", err)
		}
	}

	// 场景在生成阶段就已全部有结论时，直接进入待合成
	if _, err := o.settleLipSyncs(ctx, rec.ID); err != nil {
		o.logSoft(rec.ID, "settle lip-sync", err)
	}
}

// settleLipSyncs 把超过截止时间的场景记为超时，全部有结论后进入 ready_to_combine
func (o *Orchestrator) settleLipSyncs(ctx context.Context, genID string) (*generation.Generation, error) {
	var expired []int
	rec, err := o.mutate(ctx, genID, func(g *generation.Generation) bool {
		expired = g.ExpireLipSyncs(o.now())
		settled := settleLipSync(g)
		return len(expired) > 0 || settled
	})
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		log.Warn().
			Str("generation_id", genID).
			Ints("scene_indexes", expired).
			Msg("lip-sync timed out, scenes will use original video")
	}
	return rec, nil
}

// ensureLipSyncs 为已完成但尚未提交口型同步的场景补交任务
func (o *Orchestrator) ensureLipSyncs(ctx context.Context, rec *generation.Generation) {
	if rec.TotalScenes <= 1 {
		return
	}
	for i := range rec.SceneURLs {
		if rec.SyncTaskID(i) != "" || rec.SceneSettled(i) {
			continue
		}
		o.soft(rec.ID, "submit lip-sync", func() error {
			_, err := o.submitLipSync(ctx, rec.ID, i)
			return err
		})
	}
}

// settleLipSync 所有场景口型同步都有结论后迁移到 ready_to_combine
func settleLipSync(g *generation.Generation) bool {
	if !g.Status.Is(generation.KindLipSyncing) || !g.AllScenesSettled() {
		return false
	}
	g.Status = generation.ReadyToCombine()
	return true
}

// load 定位记录：优先使用生成ID，否则经恢复层按任务ID查找
func (o *Orchestrator) load(ctx context.Context, key, generationID string) (*generation.Generation, error) {
	if generationID != "" {
		rec, err := o.repo.FindByID(ctx, generationID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, genrepo.ErrNotFound) {
			return nil, err
		}
		if key == "" || key == generationID {
			return nil, ErrGenerationNotFound
		}
	}
	if key == "" {
		return nil, invalid("task_id", "is required")
	}

	view, err := o.Recover(ctx, key)
	if err != nil {
		return nil, err
	}
	rec, err := o.repo.FindByID(ctx, view.GenerationID)
	if err != nil {
		if errors.Is(err, genrepo.ErrNotFound) {
			// 记录已删除，缓存的视图作废
			o.cache.Delete(ctx, key, view.GenerationID, view.CurrentTaskID)
		}
		return nil, o.notFound(err)
	}
	return rec, nil
}

// mutate 读取最新记录，应用修改并比较并交换写回；版本冲突时重新读取再试
// fn 返回 false 表示无需写入
func (o *Orchestrator) mutate(ctx context.Context, genID string, fn func(g *generation.Generation) bool) (*generation.Generation, error) {
	for attempt := 1; ; attempt++ {
		g, err := o.repo.FindByID(ctx, genID)
		if err != nil {
			return nil, o.notFound(err)
		}
		from := g.Status
		if !fn(g) {
			return g, nil
		}

		err = o.repo.Update(ctx, g)
		if err == nil {
			if g.Status != from {
				o.metrics.ObserveTransition(string(g.Status.Kind))
				log.Info().
					Str("generation_id", genID).
					Str("from", from.String()).
					Str("to", g.Status.String()).
					Msg("generation status changed")
			}
			return g, nil
		}
		if !errors.Is(err, genrepo.ErrVersionConflict) || attempt >= maxUpdateAttempts {
			return nil, o.notFound(err)
		}
		log.Debug().Str("generation_id", genID).Int("attempt", attempt).Msg("version conflict, retrying")
	}
}

// guarded 在持久化的步骤锁内执行一次外部提交
// 锁在结果写入记录后释放；锁被占用时返回 ErrStepInProgress
func (o *Orchestrator) guarded(ctx context.Context, genID, step string, fn func() error) error {
	lease, ok, err := o.repo.AcquireStep(ctx, genID, step, o.opts.StepLockTTL)
	if err != nil {
		return fmt.Errorf("acquire step %s: %w", step, err)
	}
	if !ok {
		return ErrStepInProgress
	}
	defer func() {
		if err := o.repo.ReleaseStep(context.WithoutCancel(ctx), genID, step, lease); err != nil {
			log.Warn().Err(err).Str("generation_id", genID).Str("step", step).Msg("release step failed")
		}
	}()
	return fn()
}

// soft 执行旁路步骤，失败只记录日志
func (o *Orchestrator) soft(genID, what string, fn func() error) {
	if err := fn(); err != nil {
		o.logSoft(genID, what, err)
	}
}

func (o *Orchestrator) logSoft(genID, what string, err error) {
	if errors.Is(err, ErrStepInProgress) {
		log.Debug().Str("generation_id", genID).Str("step", what).Msg("step already in flight")
		return
	}
	log.Warn().Err(err).Str("generation_id", genID).Str("step", what).Msg("step failed, will retry on next poll")
}

// remember 以生成ID、当前任务ID及调用方使用的 key 缓存任务视图
func (o *Orchestrator) remember(ctx context.Context, rec *generation.Generation, keys ...string) {
	keys = append(keys, rec.ID, rec.CurrentTaskID)
	o.cache.Set(ctx, generation.NewTaskView(rec), keys...)
}

func (o *Orchestrator) notFound(err error) error {
	if errors.Is(err, genrepo.ErrNotFound) {
		return ErrGenerationNotFound
	}
	return err
}

func (o *Orchestrator) voiceFor(avatarID string) string {
	if avatarID == "" {
		return ""
	}
	return o.opts.Voices[avatarID]
}

// Progress 已完成场景占比 round(100*completed/total)
// 全部场景生成后即为 100，口型同步与合成不再单独计入
func Progress(g *generation.Generation) int {
	if g.Status.Is(generation.KindCompleted) {
		return 100
	}
	if g.TotalScenes <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(g.CurrentScene) / float64(g.TotalScenes)))
}

func buildStatus(g *generation.Generation) *StatusResult {
	current := min(g.CurrentScene+1, g.TotalScenes)
	return &StatusResult{
		GenerationID:    g.ID,
		CurrentTaskID:   g.CurrentTaskID,
		Status:          g.Status,
		Progress:        Progress(g),
		VideoURL:        g.FinalVideoURL,
		ThumbnailURL:    g.ThumbnailURL,
		SceneURLs:       append([]string{}, g.SceneURLs...),
		SyncedSceneURLs: append([]string{}, g.SyncedSceneURLs...),
		CurrentScene:    current,
		TotalScenes:     g.TotalScenes,
		FrameRequestID:  g.FrameExtractionRequestID,
		Error:           g.ErrorMessage,
	}
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid(toSnake(fe.Field()), fmt.Sprintf("failed on %s", fe.Tag()))
	}
	return invalid("request", err.Error())
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
