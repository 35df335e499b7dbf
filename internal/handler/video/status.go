package video

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Status 查询生成状态并推进流水线
// @Summary      查询状态
// @Description  以调用方持有的任务ID（场景任务ID或生成ID）轮询；每次调用都会推进一步（提交截帧、下一场景、口型同步，收集结果）。建议每 5-10 秒调用一次
// @Tags         视频生成
// @Produce      json
// @Param        task_id        path   string  true   "任务ID或生成ID"
// @Param        generation_id  query  string  false  "生成ID（缓存丢失时加速定位）"
// @Success      200  {object}  httputil.SuccessResponse{data=pipeline.StatusResult}
// @Failure      404  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /api/v1/video/status/{task_id} [get]
func (h *Handler) Status(c *gin.Context) {
	st, err := h.pipeline.PollStatus(c.Request.Context(), c.Param("task_id"), c.Query("generation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", st)
}

// SceneStatus 按场景任务ID查询
// @Summary      查询场景
// @Description  与 status 相同的推进逻辑，参数以查询串传入
// @Tags         视频生成
// @Produce      json
// @Param        scene_task_id  query  string  true   "场景任务ID"
// @Param        generation_id  query  string  false  "生成ID"
// @Success      200  {object}  httputil.SuccessResponse{data=pipeline.StatusResult}
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/video/scene-status [get]
func (h *Handler) SceneStatus(c *gin.Context) {
	taskID := c.Query("scene_task_id")
	if taskID == "" {
		badRequest(c, errors.New("scene_task_id is required"))
		return
	}
	st, err := h.pipeline.PollStatus(c.Request.Context(), taskID, c.Query("generation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", st)
}

// NextSceneRequest 截帧请求
type NextSceneRequest struct {
	GenerationID     string `json:"generation_id" binding:"required"`
	PreviousSceneURL string `json:"previous_scene_url,omitempty"`
}

// RequestIDData 提交外部任务后返回的任务ID
type RequestIDData struct {
	GenerationID string `json:"generation_id"`
	RequestID    string `json:"request_id"`
}

// NextScene 对上一场景请求截取最后一帧
// @Summary      请求截帧
// @Description  previous_scene_url 为空时取最近完成的场景；同一场景重复请求返回已有任务ID
// @Tags         视频生成
// @Accept       json
// @Produce      json
// @Param        request  body      NextSceneRequest  true  "截帧参数"
// @Success      202      {object}  httputil.SuccessResponse{data=RequestIDData}
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Router       /api/v1/video/next-scene [post]
func (h *Handler) NextScene(c *gin.Context) {
	var req NextSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reqID, err := h.pipeline.RequestFrameExtraction(c.Request.Context(), req.GenerationID, req.PreviousSceneURL)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusAccepted, "frame extraction requested", RequestIDData{GenerationID: req.GenerationID, RequestID: reqID})
}

// FrameStatus 查询截帧任务
// @Summary      查询截帧
// @Description  带 generation_id 时把截到的帧写入生成记录
// @Tags         视频生成
// @Produce      json
// @Param        request_id     path   string  true   "截帧任务ID"
// @Param        generation_id  query  string  false  "生成ID"
// @Success      200  {object}  httputil.SuccessResponse{data=pipeline.FrameResult}
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /api/v1/video/frame-status/{request_id} [get]
func (h *Handler) FrameStatus(c *gin.Context) {
	res, err := h.pipeline.PollFrameExtraction(c.Request.Context(), c.Param("request_id"), c.Query("generation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", res)
}

// GenerateSceneRequest 提交后续场景请求
type GenerateSceneRequest struct {
	GenerationID string `json:"generation_id" binding:"required"`
	FrameURL     string `json:"frame_url,omitempty"`
	SceneNumber  int    `json:"scene_number" binding:"required"`
}

// GenerateScene 以截取的帧为首帧提交下一场景
// @Summary      提交下一场景
// @Description  scene_number 从 1 开始且必须是下一个待生成的场景；frame_url 为空时使用记录中的最后一帧
// @Tags         视频生成
// @Accept       json
// @Produce      json
// @Param        request  body      GenerateSceneRequest  true  "场景参数"
// @Success      202      {object}  httputil.SuccessResponse{data=RequestIDData}
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Router       /api/v1/video/generate-scene [post]
func (h *Handler) GenerateScene(c *gin.Context) {
	var req GenerateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	jobID, err := h.pipeline.SubmitNextScene(c.Request.Context(), req.GenerationID, req.FrameURL, req.SceneNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusAccepted, "scene submitted", RequestIDData{GenerationID: req.GenerationID, RequestID: jobID})
}

// LipSyncRequest 口型同步请求
type LipSyncRequest struct {
	GenerationID string `json:"generation_id" binding:"required"`
	SceneIndex   *int   `json:"scene_index" binding:"required"`
	VideoURL     string `json:"video_url,omitempty"`
	Script       string `json:"script,omitempty"`
}

// LipSync 为场景提交口型同步
// @Summary      提交口型同步
// @Description  scene_index 从 0 开始；台词以创建时切分的场景脚本为准；重复请求返回已有任务ID
// @Tags         视频生成
// @Accept       json
// @Produce      json
// @Param        request  body      LipSyncRequest  true  "口型同步参数"
// @Success      202      {object}  httputil.SuccessResponse{data=RequestIDData}
// @Failure      400      {object}  ErrorResponse
// @Failure      422      {object}  ErrorResponse
// @Router       /api/v1/video/lipsync [post]
func (h *Handler) LipSync(c *gin.Context) {
	var req LipSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	jobID, err := h.pipeline.RequestLipSync(c.Request.Context(), req.GenerationID, *req.SceneIndex, req.VideoURL, req.Script)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusAccepted, "lip-sync submitted", RequestIDData{GenerationID: req.GenerationID, RequestID: jobID})
}

// LipSyncStatus 查询口型同步任务
// @Summary      查询口型同步
// @Description  带 generation_id 时按 scene_index 写入结果；所有场景都有结论后生成进入 ready_to_combine
// @Tags         视频生成
// @Produce      json
// @Param        job_id         path   string  true   "口型同步任务ID"
// @Param        generation_id  query  string  false  "生成ID"
// @Param        scene_index    query  int     false  "场景下标（从 0 开始）"
// @Success      200  {object}  httputil.SuccessResponse{data=pipeline.LipSyncResult}
// @Failure      400  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /api/v1/video/lipsync-status/{job_id} [get]
func (h *Handler) LipSyncStatus(c *gin.Context) {
	genID := c.Query("generation_id")
	index := 0
	if raw := c.Query("scene_index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		index = n
	} else if genID != "" {
		badRequest(c, errors.New("scene_index is required with generation_id"))
		return
	}

	res, err := h.pipeline.PollLipSync(c.Request.Context(), c.Param("job_id"), genID, index)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", res)
}

// CombineRequest 合成请求
type CombineRequest struct {
	GenerationID string `json:"generation_id" binding:"required"`
}

// Combine 合成所有场景
// @Summary      合成视频
// @Description  只在 ready_to_combine 状态允许；优先使用口型同步结果，缺失时回退到原始场景；重复请求返回已有任务ID
// @Tags         视频生成
// @Accept       json
// @Produce      json
// @Param        request  body      CombineRequest  true  "合成参数"
// @Success      202      {object}  httputil.SuccessResponse{data=RequestIDData}
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Failure      422      {object}  ErrorResponse
// @Router       /api/v1/video/combine [post]
func (h *Handler) Combine(c *gin.Context) {
	var req CombineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reqID, err := h.pipeline.RequestCombine(c.Request.Context(), req.GenerationID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusAccepted, "combine submitted", RequestIDData{GenerationID: req.GenerationID, RequestID: reqID})
}

// CombineStatus 查询合成任务
// @Summary      查询合成
// @Description  成功后写入成片与缩略图并完成生成；generation_id 为空时按合成任务ID查找
// @Tags         视频生成
// @Produce      json
// @Param        request_id     path   string  true   "合成任务ID"
// @Param        generation_id  query  string  false  "生成ID"
// @Success      200  {object}  httputil.SuccessResponse{data=pipeline.CombineResult}
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /api/v1/video/combine-status/{request_id} [get]
func (h *Handler) CombineStatus(c *gin.Context) {
	res, err := h.pipeline.PollCombine(c.Request.Context(), c.Param("request_id"), c.Query("generation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", res)
}
