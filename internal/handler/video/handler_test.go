package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"ugcstudio/internal/ai"
	"ugcstudio/internal/pkg/ctxutil"
	httputil "ugcstudio/internal/pkg/http"
	"ugcstudio/internal/pkg/jobs"
	"ugcstudio/internal/service/pipeline"
)

type fakePipeline struct {
	err error

	start      pipeline.StartRequest
	startRes   *pipeline.StartResult
	pollKey    string
	pollGenID  string
	sceneIndex int
	calls      []string
}

func (f *fakePipeline) called(name string) { f.calls = append(f.calls, name) }

func (f *fakePipeline) StartGeneration(_ context.Context, req pipeline.StartRequest) (*pipeline.StartResult, error) {
	f.called("start")
	f.start = req
	return f.startRes, f.err
}

func (f *fakePipeline) PollStatus(_ context.Context, key, generationID string) (*pipeline.StatusResult, error) {
	f.called("status")
	f.pollKey, f.pollGenID = key, generationID
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.StatusResult{GenerationID: "gen-1", CurrentTaskID: key, Progress: 40}, nil
}

func (f *fakePipeline) RequestFrameExtraction(_ context.Context, generationID, _ string) (string, error) {
	f.called("frame")
	f.pollGenID = generationID
	return "frame-1", f.err
}

func (f *fakePipeline) PollFrameExtraction(_ context.Context, requestID, generationID string) (*pipeline.FrameResult, error) {
	f.called("frame-status")
	f.pollKey, f.pollGenID = requestID, generationID
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.FrameResult{RequestID: requestID, Completed: true, FrameURL: "https://cdn.example.com/f.png"}, nil
}

func (f *fakePipeline) SubmitNextScene(_ context.Context, generationID, _ string, sceneNumber int) (string, error) {
	f.called("scene")
	f.pollGenID = generationID
	f.sceneIndex = sceneNumber
	return "scene-2", f.err
}

func (f *fakePipeline) RequestLipSync(_ context.Context, generationID string, sceneIndex int, _, _ string) (string, error) {
	f.called("lipsync")
	f.pollGenID = generationID
	f.sceneIndex = sceneIndex
	return "sync-1", f.err
}

func (f *fakePipeline) PollLipSync(_ context.Context, jobID, generationID string, sceneIndex int) (*pipeline.LipSyncResult, error) {
	f.called("lipsync-status")
	f.pollKey, f.pollGenID, f.sceneIndex = jobID, generationID, sceneIndex
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.LipSyncResult{JobID: jobID}, nil
}

func (f *fakePipeline) RequestCombine(_ context.Context, generationID string) (string, error) {
	f.called("combine")
	f.pollGenID = generationID
	return "combine-1", f.err
}

func (f *fakePipeline) PollCombine(_ context.Context, requestID, generationID string) (*pipeline.CombineResult, error) {
	f.called("combine-status")
	f.pollKey, f.pollGenID = requestID, generationID
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.CombineResult{RequestID: requestID}, nil
}

type fakeScripts struct{ err error }

func (f *fakeScripts) Generate(_ context.Context, req *ai.ScriptRequest) (*ai.ScriptResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ai.ScriptResult{Script: "Hello from " + req.ProductName, WordCount: 3}, nil
}

// testUser 模拟可选认证：带 X-Test-User 时注入用户
func testUser(c *gin.Context) {
	if uid := c.GetHeader("X-Test-User"); uid != "" {
		c.Request = c.Request.WithContext(ctxutil.WithUserID(c.Request.Context(), uid))
	}
	c.Next()
}

func newRouter(p Pipeline, scripts ScriptGenerator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(p, scripts).Register(r.Group("/api/v1"), testUser)
	return r
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(w *httptest.ResponseRecorder) envelope {
	var e envelope
	So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
	return e
}

func TestGenerate(t *testing.T) {
	Convey("POST /video/generate", t, func() {
		p := &fakePipeline{startRes: &pipeline.StartResult{GenerationID: "gen-1", CurrentJobID: "scene-1", TotalScenes: 3}}
		r := newRouter(p, nil)
		body := `{"script":"hello world","avatar_url":"https://cdn.example.com/a.png","duration":24,"avatar_id":"anna"}`

		Convey("creates the generation and records the caller as owner", func() {
			w := do(r, http.MethodPost, "/api/v1/video/generate", body, "X-Test-User", "alice")
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(p.start.OwnerID, ShouldEqual, "alice")
			So(p.start.Duration, ShouldEqual, 24)
			So(p.start.AvatarID, ShouldEqual, "anna")

			var res pipeline.StartResult
			So(json.Unmarshal(decode(w).Data, &res), ShouldBeNil)
			So(res.GenerationID, ShouldEqual, "gen-1")
			So(res.CurrentJobID, ShouldEqual, "scene-1")
		})

		Convey("anonymous callers have no owner", func() {
			w := do(r, http.MethodPost, "/api/v1/video/generate", body)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(p.start.OwnerID, ShouldBeEmpty)
		})

		Convey("a deferred first scene still returns the generation id", func() {
			p.err = &jobs.ProviderRequestError{Provider: "kie", Op: "submit", StatusCode: 502, Err: errors.New("bad gateway")}
			w := do(r, http.MethodPost, "/api/v1/video/generate", body)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			var res pipeline.StartResult
			So(json.Unmarshal(decode(w).Data, &res), ShouldBeNil)
			So(res.GenerationID, ShouldEqual, "gen-1")
		})

		Convey("validation failures are 400", func() {
			p.startRes = nil
			p.err = &pipeline.ValidationError{Field: "avatar_url", Reason: "required"}
			w := do(r, http.MethodPost, "/api/v1/video/generate", `{"script":"hi"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w).Code, ShouldEqual, httputil.CodeInvalidRequest)
		})

		Convey("malformed json is 400 without touching the pipeline", func() {
			w := do(r, http.MethodPost, "/api/v1/video/generate", `{not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(p.calls, ShouldBeEmpty)
		})
	})
}

func TestErrorMapping(t *testing.T) {
	Convey("pipeline errors map to status and code", t, func() {
		cases := []struct {
			err    error
			status int
			code   int
		}{
			{&pipeline.ValidationError{Field: "task_id", Reason: "required"}, http.StatusBadRequest, httputil.CodeInvalidRequest},
			{pipeline.ErrInsufficientScenes, http.StatusBadRequest, httputil.CodeInsufficientScenes},
			{pipeline.ErrGenerationNotFound, http.StatusNotFound, httputil.CodeNotFound},
			{pipeline.ErrStepInProgress, http.StatusConflict, httputil.CodeStepInProgress},
			{fmt.Errorf("%w: status is pending", pipeline.ErrInvalidState), http.StatusConflict, httputil.CodeInvalidState},
			{pipeline.ErrGenerationFailed, http.StatusUnprocessableEntity, httputil.CodeGenerationFailed},
			{&jobs.JobFailedError{Provider: "composer", JobID: "compose-1", Detail: "codec error"}, http.StatusUnprocessableEntity, httputil.CodeProviderJobFailed},
			{&jobs.ProviderRequestError{Provider: "fal", Op: "status", Err: errors.New("timeout")}, http.StatusBadGateway, httputil.CodeProviderUnavailable},
			{errors.New("boom"), http.StatusInternalServerError, httputil.CodeInternal},
		}

		for _, tc := range cases {
			p := &fakePipeline{err: tc.err}
			w := do(newRouter(p, nil), http.MethodGet, "/api/v1/video/status/task-1", "")
			So(w.Code, ShouldEqual, tc.status)
			So(decode(w).Code, ShouldEqual, tc.code)
		}
	})
}

func TestStepEndpoints(t *testing.T) {
	Convey("Given a router over a fake pipeline", t, func() {
		p := &fakePipeline{}
		r := newRouter(p, nil)

		Convey("status passes the key and optional generation id", func() {
			w := do(r, http.MethodGet, "/api/v1/video/status/scene-1?generation_id=gen-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(p.pollKey, ShouldEqual, "scene-1")
			So(p.pollGenID, ShouldEqual, "gen-1")
		})

		Convey("scene-status requires the scene task id", func() {
			So(do(r, http.MethodGet, "/api/v1/video/scene-status", "").Code, ShouldEqual, http.StatusBadRequest)

			w := do(r, http.MethodGet, "/api/v1/video/scene-status?scene_task_id=scene-2&generation_id=gen-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(p.pollKey, ShouldEqual, "scene-2")
		})

		Convey("next-scene returns the frame request id", func() {
			w := do(r, http.MethodPost, "/api/v1/video/next-scene", `{"generation_id":"gen-1"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			var data RequestIDData
			So(json.Unmarshal(decode(w).Data, &data), ShouldBeNil)
			So(data.RequestID, ShouldEqual, "frame-1")
		})

		Convey("next-scene requires a generation id", func() {
			w := do(r, http.MethodPost, "/api/v1/video/next-scene", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(p.calls, ShouldBeEmpty)
		})

		Convey("generate-scene forwards the scene number", func() {
			w := do(r, http.MethodPost, "/api/v1/video/generate-scene", `{"generation_id":"gen-1","frame_url":"https://cdn.example.com/f.png","scene_number":2}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(p.sceneIndex, ShouldEqual, 2)
		})

		Convey("lipsync accepts scene index zero", func() {
			w := do(r, http.MethodPost, "/api/v1/video/lipsync", `{"generation_id":"gen-1","scene_index":0}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(p.sceneIndex, ShouldEqual, 0)
			So(p.calls, ShouldResemble, []string{"lipsync"})
		})

		Convey("lipsync without scene index is rejected", func() {
			w := do(r, http.MethodPost, "/api/v1/video/lipsync", `{"generation_id":"gen-1"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(p.calls, ShouldBeEmpty)
		})

		Convey("lipsync-status parses the scene index", func() {
			w := do(r, http.MethodGet, "/api/v1/video/lipsync-status/sync-1?generation_id=gen-1&scene_index=2", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(p.pollKey, ShouldEqual, "sync-1")
			So(p.sceneIndex, ShouldEqual, 2)

			w = do(r, http.MethodGet, "/api/v1/video/lipsync-status/sync-1?generation_id=gen-1&scene_index=x", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = do(r, http.MethodGet, "/api/v1/video/lipsync-status/sync-1?generation_id=gen-1", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("combine and combine-status", func() {
			w := do(r, http.MethodPost, "/api/v1/video/combine", `{"generation_id":"gen-1"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			w = do(r, http.MethodGet, "/api/v1/video/combine-status/combine-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(p.pollKey, ShouldEqual, "combine-1")
			So(p.pollGenID, ShouldBeEmpty)
		})

		Convey("frame-status", func() {
			w := do(r, http.MethodGet, "/api/v1/video/frame-status/frame-1?generation_id=gen-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var res pipeline.FrameResult
			So(json.Unmarshal(decode(w).Data, &res), ShouldBeNil)
			So(res.Completed, ShouldBeTrue)
		})
	})
}

func TestGenerateScript(t *testing.T) {
	Convey("POST /video/script", t, func() {
		body := `{"product_name":"Glow Serum","duration":16}`

		Convey("without a configured generator it is unavailable", func() {
			w := do(newRouter(&fakePipeline{}, nil), http.MethodPost, "/api/v1/video/script", body)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode(w).Code, ShouldEqual, httputil.CodeAIUnavailable)
		})

		Convey("returns the generated script", func() {
			w := do(newRouter(&fakePipeline{}, &fakeScripts{}), http.MethodPost, "/api/v1/video/script", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			var res ai.ScriptResult
			So(json.Unmarshal(decode(w).Data, &res), ShouldBeNil)
			So(res.Script, ShouldEqual, "Hello from Glow Serum")
		})

		Convey("model failures are 503", func() {
			w := do(newRouter(&fakePipeline{}, &fakeScripts{err: errors.New("rate limited")}), http.MethodPost, "/api/v1/video/script", body)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
