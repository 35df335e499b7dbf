package pipeline

import (
	"context"
	"fmt"
	"sync"

	"ugcstudio/internal/pkg/jobs"
	genrepo "ugcstudio/internal/repository/generation"
)

// fakeJob 内存中的外部任务服务，状态由测试手动推进
type fakeJob[In, Out any] struct {
	mu        sync.Mutex
	prefix    string
	n         int
	inputs    []In
	states    map[string]jobs.Status
	results   map[string]Out
	submitErr error
	pollErr   error
}

func newFakeJob[In, Out any](prefix string) *fakeJob[In, Out] {
	return &fakeJob[In, Out]{
		prefix:  prefix,
		states:  make(map[string]jobs.Status),
		results: make(map[string]Out),
	}
}

func (f *fakeJob[In, Out]) Submit(_ context.Context, in In) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.n++
	id := fmt.Sprintf("%s-%d", f.prefix, f.n)
	f.inputs = append(f.inputs, in)
	f.states[id] = jobs.Status{State: jobs.StateRunning}
	return id, nil
}

func (f *fakeJob[In, Out]) PollStatus(_ context.Context, jobID string) (jobs.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return jobs.Status{}, f.pollErr
	}
	st, ok := f.states[jobID]
	if !ok {
		return jobs.Status{State: jobs.StateQueued}, nil
	}
	return st, nil
}

func (f *fakeJob[In, Out]) FetchResult(_ context.Context, jobID string) (Out, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero Out
	if f.states[jobID].State != jobs.StateSucceeded {
		return zero, jobs.ErrResultNotReady
	}
	return f.results[jobID], nil
}

func (f *fakeJob[In, Out]) succeed(jobID string, out Out) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[jobID] = jobs.Status{State: jobs.StateSucceeded}
	f.results[jobID] = out
}

func (f *fakeJob[In, Out]) fail(jobID, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[jobID] = jobs.Status{State: jobs.StateFailed, Detail: detail}
}

func (f *fakeJob[In, Out]) submitted() []In {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]In(nil), f.inputs...)
}

type harness struct {
	repo    *genrepo.MemoryRepo
	scene   *fakeJob[jobs.SceneInput, string]
	frame   *fakeJob[jobs.FrameInput, string]
	lipSync *fakeJob[jobs.LipSyncInput, string]
	compose *fakeJob[jobs.ComposeInput, jobs.ComposeOutput]
	cache   *MemoryTaskCache
	orch    *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		repo:    genrepo.NewMemoryRepo(),
		scene:   newFakeJob[jobs.SceneInput, string]("scene"),
		frame:   newFakeJob[jobs.FrameInput, string]("frame"),
		lipSync: newFakeJob[jobs.LipSyncInput, string]("sync"),
		compose: newFakeJob[jobs.ComposeInput, jobs.ComposeOutput]("compose"),
	}
	h.restart()
	return h
}

// restart 模拟进程重启：仓库与外部服务保留，缓存清空
func (h *harness) restart() {
	h.cache = NewMemoryTaskCache(0)
	h.orch = New(h.repo, Clients{
		Scene:   h.scene,
		Frame:   h.frame,
		LipSync: h.lipSync,
		Compose: h.compose,
	}, h.cache, nil, Options{Voices: map[string]string{"anna": "voice-anna"}})
}

func (h *harness) start(duration int, script string) *StartResult {
	res, err := h.orch.StartGeneration(context.Background(), StartRequest{
		Script:          script,
		AvatarURL:       "https://cdn.example.com/avatar.png",
		AvatarID:        "anna",
		ProductImageURL: "https://cdn.example.com/product.png",
		Duration:        duration,
	})
	if err != nil {
		panic(err)
	}
	return res
}

// finishTwoScenes 推进一个 16 秒的生成直到两个场景都已生成
func (h *harness) finishTwoScenes(genID string) *StatusResult {
	h.scene.succeed("scene-1", "https://cdn.example.com/s1.mp4")
	h.poll(genID)
	h.frame.succeed("frame-1", "https://cdn.example.com/f1.jpg")
	h.poll(genID)
	h.scene.succeed("scene-2", "https://cdn.example.com/s2.mp4")
	return h.poll(genID)
}

func (h *harness) poll(genID string) *StatusResult {
	st, err := h.orch.PollStatus(context.Background(), "", genID)
	if err != nil {
		panic(err)
	}
	return st
}
