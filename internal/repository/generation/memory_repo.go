package generation

import (
	"context"
	"sort"
	"sync"
	"time"

	"ugcstudio/internal/model/generation"
)

// MemoryRepo 进程内实现，语义与 GenerationRepo 一致（版本比较并交换、步骤锁、软删除）
// 用于本地开发（mongo.uri=memory）和测试
type MemoryRepo struct {
	mu   sync.Mutex
	now  func() time.Time
	docs map[string]*generation.Generation
}

var _ GenerationRepository = (*MemoryRepo)(nil)

// NewMemoryRepo 创建进程内仓库
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{now: time.Now, docs: make(map[string]*generation.Generation)}
}

// SetClock 替换时钟，测试步骤锁过期时使用
func (r *MemoryRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *MemoryRepo) Create(_ context.Context, g *generation.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.Version == 0 {
		g.Version = 1
	}
	g.EnsureSlots()
	r.docs[g.ID] = g.Clone()
	return nil
}

func (r *MemoryRepo) live(id string) (*generation.Generation, bool) {
	g, ok := r.docs[id]
	if !ok || g.DeletedAt != nil {
		return nil, false
	}
	return g, true
}

func (r *MemoryRepo) FindByID(_ context.Context, id string) (*generation.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	c := g.Clone()
	c.EnsureSlots()
	return c, nil
}

func (r *MemoryRepo) findLatest(match func(g *generation.Generation) bool) (*generation.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *generation.Generation
	for _, g := range r.docs {
		if g.DeletedAt != nil || !match(g) {
			continue
		}
		if best == nil || g.UpdatedAt.After(best.UpdatedAt) {
			best = g
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	c := best.Clone()
	c.EnsureSlots()
	return c, nil
}

func (r *MemoryRepo) FindByCurrentTaskID(_ context.Context, taskID string) (*generation.Generation, error) {
	return r.findLatest(func(g *generation.Generation) bool { return taskID != "" && g.CurrentTaskID == taskID })
}

func (r *MemoryRepo) FindByCombineRequestID(_ context.Context, requestID string) (*generation.Generation, error) {
	return r.findLatest(func(g *generation.Generation) bool { return requestID != "" && g.CombineRequestID == requestID })
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string, completedOnly bool) ([]*generation.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*generation.Generation, 0)
	for _, g := range r.docs {
		if g.DeletedAt != nil || g.Owner() != userID || userID == "" {
			continue
		}
		if completedOnly && (!g.Status.Is(generation.KindCompleted) || g.FinalVideoURL == "") {
			continue
		}
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Update(_ context.Context, g *generation.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.live(g.ID)
	if !ok {
		return ErrNotFound
	}
	if cur.Version != g.Version {
		return ErrVersionConflict
	}

	now := r.now()
	next := g.Clone()
	next.Version = g.Version + 1
	next.UpdatedAt = now
	// 步骤锁与不可变字段不随状态更新写入
	next.StepLocks = cur.StepLocks
	next.UserID = cur.UserID
	next.CreatedAt = cur.CreatedAt
	next.DeletedAt = cur.DeletedAt
	r.docs[g.ID] = next

	g.Version++
	g.UpdatedAt = now
	return nil
}

func (r *MemoryRepo) AcquireStep(_ context.Context, id, step string, ttl time.Duration) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.live(id)
	if !ok {
		return time.Time{}, false, nil
	}
	now := r.now()
	if exp, held := g.StepLocks[step]; held && exp.After(now) {
		return time.Time{}, false, nil
	}
	if g.StepLocks == nil {
		g.StepLocks = make(map[string]time.Time)
	}
	lease := now.Add(ttl).Truncate(time.Millisecond)
	g.StepLocks[step] = lease
	return lease, true, nil
}

func (r *MemoryRepo) ReleaseStep(_ context.Context, id, step string, lease time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.docs[id]
	if !ok {
		return nil
	}
	if exp, held := g.StepLocks[step]; held && exp.Equal(lease) {
		delete(g.StepLocks, step)
	}
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.live(id)
	if !ok || g.Owner() != userID {
		return ErrNotFound
	}
	now := r.now()
	g.DeletedAt = &now
	g.UpdatedAt = now
	return nil
}
