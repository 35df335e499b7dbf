package generation

// TaskView 驱动下一步所需的记录子集，仅作缓存，随时可由 Generation 重建
// CurrentScene 为正在进行的场景序号（从 1 开始），记录中的 current_scene 为已完成数量
type TaskView struct {
	GenerationID  string   `json:"generation_id"`
	CurrentTaskID string   `json:"current_task_id"`
	Status        Status   `json:"status"`
	CurrentScene  int      `json:"current_scene"`
	TotalScenes   int      `json:"total_scenes"`
	SceneURLs     []string `json:"scene_urls"`
	SceneScripts  []string `json:"scene_scripts"`
	SyncedURLs    []string `json:"synced_scene_urls"`
	AvatarURL     string   `json:"avatar_url"`
	ProductURL    string   `json:"product_image_url,omitempty"`
	AspectRatio   string   `json:"aspect_ratio"`
	Language      string   `json:"language"`
}

// NewTaskView 从持久化记录构建任务视图
func NewTaskView(g *Generation) *TaskView {
	return &TaskView{
		GenerationID:  g.ID,
		CurrentTaskID: g.CurrentTaskID,
		Status:        g.Status,
		CurrentScene:  g.CurrentScene + 1,
		TotalScenes:   g.TotalScenes,
		SceneURLs:     append([]string(nil), g.SceneURLs...),
		SceneScripts:  append([]string(nil), g.SceneScripts...),
		SyncedURLs:    append([]string(nil), g.SyncedSceneURLs...),
		AvatarURL:     g.AvatarURL,
		ProductURL:    g.ProductImageURL,
		AspectRatio:   g.AspectRatio,
		Language:      g.Language,
	}
}
