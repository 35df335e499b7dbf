package kie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ugcstudio/internal/config"
	"ugcstudio/internal/pkg/jobs"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(&config.KieConfig{APIKey: "test-key", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.seed = func() int { return 12345 }
	return c
}

func TestClientSubmit(t *testing.T) {
	Convey("Submit", t, func() {
		var got generateRequest
		var auth string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"veo_task_1"}}`))
		})

		Convey("first scene uses reference mode with avatar and product", func() {
			id, err := c.Submit(context.Background(), jobs.SceneInput{
				Prompt:      "Hello there",
				ImageURLs:   []string{"https://cdn/avatar.png", "https://cdn/product.png"},
				AspectRatio: "9:16",
			})
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "veo_task_1")
			So(auth, ShouldEqual, "Bearer test-key")
			So(got.GenerationType, ShouldEqual, generationTypeReference)
			So(got.ImageURLs, ShouldHaveLength, 2)
			So(got.Model, ShouldEqual, defaultModel)
			So(got.Seeds, ShouldEqual, 12345)
			So(got.EnableTranslation, ShouldBeTrue)
		})

		Convey("continuation uses first-and-last-frame mode", func() {
			_, err := c.Submit(context.Background(), jobs.SceneInput{
				Prompt:       "Next part",
				ImageURLs:    []string{"https://cdn/frame.png"},
				Continuation: true,
			})
			So(err, ShouldBeNil)
			So(got.GenerationType, ShouldEqual, generationTypeContinuity)
		})
	})

	Convey("Submit with a non-200 envelope code", t, func() {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":402,"msg":"insufficient credits"}`))
		})
		_, err := c.Submit(context.Background(), jobs.SceneInput{Prompt: "x", ImageURLs: []string{"a"}})
		So(jobs.IsProviderRequestError(err), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "insufficient credits")
	})

	Convey("Submit with an HTTP error", t, func() {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"bad key"}`))
		})
		_, err := c.Submit(context.Background(), jobs.SceneInput{Prompt: "x", ImageURLs: []string{"a"}})
		var pe *jobs.ProviderRequestError
		So(errors.As(err, &pe), ShouldBeTrue)
		So(pe.StatusCode, ShouldEqual, http.StatusUnauthorized)
	})
}

func TestClientStatus(t *testing.T) {
	Convey("PollStatus and FetchResult", t, func() {
		flag := 0
		var taskID string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			taskID = r.URL.Query().Get("taskId")
			resp := map[string]any{
				"code": 200,
				"msg":  "success",
				"data": map[string]any{
					"taskId":       "veo_task_1",
					"successFlag":  flag,
					"errorMessage": "content policy",
					"response":     map[string]any{"resultUrls": []string{"https://cdn/scene1.mp4"}},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		})
		ctx := context.Background()

		Convey("processing maps to running and result is not ready", func() {
			st, err := c.PollStatus(ctx, "veo_task_1")
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, jobs.StateRunning)
			So(taskID, ShouldEqual, "veo_task_1")

			_, err = c.FetchResult(ctx, "veo_task_1")
			So(errors.Is(err, jobs.ErrResultNotReady), ShouldBeTrue)
		})

		Convey("success returns the first result url", func() {
			flag = 1
			st, err := c.PollStatus(ctx, "veo_task_1")
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, jobs.StateSucceeded)

			u, err := c.FetchResult(ctx, "veo_task_1")
			So(err, ShouldBeNil)
			So(u, ShouldEqual, "https://cdn/scene1.mp4")
		})

		Convey("failure flags map to failed with detail", func() {
			flag = 3
			st, err := c.PollStatus(ctx, "veo_task_1")
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, jobs.StateFailed)
			So(st.Detail, ShouldEqual, "content policy")
		})

		Convey("unknown flags are treated as running", func() {
			flag = 42
			st, err := c.PollStatus(ctx, "veo_task_1")
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, jobs.StateRunning)
		})
	})
}
