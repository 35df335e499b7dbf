package fal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ugcstudio/internal/config"
	"ugcstudio/internal/pkg/jobs"
)

func newTestConfig(t *testing.T, handler http.HandlerFunc) *config.FalConfig {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &config.FalConfig{APIKey: "fal-key", BaseURL: srv.URL}
}

func TestFrameExtractor(t *testing.T) {
	Convey("FrameExtractor", t, func() {
		status := statusInQueue
		var submitted extractFrameRequest
		var auth string
		cfg := newTestConfig(t, func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/extract-frame":
				_ = json.NewDecoder(r.Body).Decode(&submitted)
				// 部分接口返回数组
				_, _ = w.Write([]byte(`[{"status":"IN_QUEUE","request_id":"req-frame-1"}]`))
			case strings.HasSuffix(r.URL.Path, "/status"):
				_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "request_id": "req-frame-1"})
			case r.URL.Path == "/requests/req-frame-1":
				_, _ = w.Write([]byte(`{"images":[{"url":"https://cdn/frame.png"}]}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})
		f, err := NewFrameExtractor(cfg, nil)
		So(err, ShouldBeNil)
		ctx := context.Background()

		id, err := f.Submit(ctx, jobs.FrameInput{VideoURL: "https://cdn/scene1.mp4"})
		So(err, ShouldBeNil)
		So(id, ShouldEqual, "req-frame-1")
		So(submitted.FrameType, ShouldEqual, "last")
		So(submitted.VideoURL, ShouldEqual, "https://cdn/scene1.mp4")
		So(auth, ShouldEqual, "Key fal-key")

		Convey("queued jobs are not fetchable", func() {
			st, err := f.PollStatus(ctx, id)
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, jobs.StateQueued)

			_, err = f.FetchResult(ctx, id)
			So(errors.Is(err, jobs.ErrResultNotReady), ShouldBeTrue)
		})

		Convey("completed jobs return the frame url", func() {
			status = statusCompleted
			u, err := f.FetchResult(ctx, id)
			So(err, ShouldBeNil)
			So(u, ShouldEqual, "https://cdn/frame.png")
		})

		Convey("unknown status strings stay running", func() {
			status = "WARMING_UP"
			st, err := f.PollStatus(ctx, id)
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, jobs.StateRunning)
		})
	})
}

func TestComposer(t *testing.T) {
	Convey("Composer", t, func() {
		var submitted composeRequest
		cfg := newTestConfig(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/compose":
				_ = json.NewDecoder(r.Body).Decode(&submitted)
				_, _ = w.Write([]byte(`{"status":"IN_QUEUE","request_id":"req-compose-1"}`))
			case strings.HasSuffix(r.URL.Path, "/status"):
				_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
			default:
				_, _ = w.Write([]byte(`{"video_url":"https://cdn/final.mp4","thumbnail_url":"https://cdn/thumb.jpg"}`))
			}
		})
		c, err := NewComposer(cfg, nil)
		So(err, ShouldBeNil)
		ctx := context.Background()

		id, err := c.Submit(ctx, jobs.ComposeInput{SceneURLs: []string{"a.mp4", "b.mp4", "c.mp4"}})
		So(err, ShouldBeNil)
		So(id, ShouldEqual, "req-compose-1")
		So(submitted.Tracks, ShouldHaveLength, 1)
		So(submitted.Tracks[0].Keyframes, ShouldHaveLength, 3)
		So(submitted.Tracks[0].Keyframes[2].Timestamp, ShouldEqual, 16)
		So(submitted.Tracks[0].Keyframes[2].Duration, ShouldEqual, 8)

		out, err := c.FetchResult(ctx, id)
		So(err, ShouldBeNil)
		So(out.VideoURL, ShouldEqual, "https://cdn/final.mp4")
		So(out.ThumbnailURL, ShouldEqual, "https://cdn/thumb.jpg")
	})
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		in   queueResponse
		want jobs.State
	}{
		{queueResponse{Status: statusInQueue}, jobs.StateQueued},
		{queueResponse{Status: statusInProgress}, jobs.StateRunning},
		{queueResponse{Status: statusCompleted}, jobs.StateSucceeded},
		{queueResponse{Status: statusCompleted, Error: "decode failed"}, jobs.StateFailed},
		{queueResponse{Status: statusFailed}, jobs.StateFailed},
		{queueResponse{Status: ""}, jobs.StateRunning},
	}
	for _, tc := range cases {
		if got := mapStatus(tc.in).State; got != tc.want {
			t.Errorf("mapStatus(%q) = %s, want %s", tc.in.Status, got, tc.want)
		}
	}
}
