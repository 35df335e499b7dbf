package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"ugcstudio/internal/model/generation"
)

func TestRecover(t *testing.T) {
	Convey("Given a generation whose cache entries were lost", t, func() {
		ctx := context.Background()
		h := newHarness()
		res := h.start(16, tenWords)
		h.scene.succeed("scene-1", "https://cdn.example.com/s1.mp4")
		h.restart()

		_, cached := h.cache.Get(ctx, "scene-1")
		So(cached, ShouldBeFalse)

		Convey("polling by the scene job id rebuilds the view and advances", func() {
			st, err := h.orch.PollStatus(ctx, "scene-1", "")
			So(err, ShouldBeNil)
			So(st.GenerationID, ShouldEqual, res.GenerationID)
			So(st.Status, ShouldResemble, generation.ExtractingFrame())

			view, ok := h.cache.Get(ctx, "scene-1")
			So(ok, ShouldBeTrue)
			So(view.GenerationID, ShouldEqual, res.GenerationID)
		})

		Convey("a generation id also resolves", func() {
			view, err := h.orch.Recover(ctx, res.GenerationID)
			So(err, ShouldBeNil)
			So(view.GenerationID, ShouldEqual, res.GenerationID)
			So(view.TotalScenes, ShouldEqual, 2)
			So(view.CurrentScene, ShouldEqual, 1)
			So(view.SceneScripts, ShouldHaveLength, 2)
		})

		Convey("a stale generation id is looked up by the poll key", func() {
			st, err := h.orch.PollStatus(ctx, "scene-1", "00000000-0000-4000-8000-000000000000")
			So(err, ShouldBeNil)
			So(st.GenerationID, ShouldEqual, res.GenerationID)
		})

		Convey("unknown keys are not found", func() {
			_, err := h.orch.Recover(ctx, "scene-404")
			So(errors.Is(err, ErrGenerationNotFound), ShouldBeTrue)
			_, err = h.orch.PollStatus(ctx, "00000000-0000-4000-8000-000000000000", "")
			So(errors.Is(err, ErrGenerationNotFound), ShouldBeTrue)
			_, err = h.orch.PollStatus(ctx, "", "")
			So(IsValidation(err), ShouldBeTrue)
		})
	})
}

func TestRecoverDeletedGeneration(t *testing.T) {
	Convey("Cached views of a deleted generation are evicted", t, func() {
		ctx := context.Background()
		h := newHarness()
		res, err := h.orch.StartGeneration(ctx, StartRequest{
			Script:    tenWords,
			AvatarURL: "https://cdn.example.com/avatar.png",
			Duration:  16,
			OwnerID:   "alice",
		})
		So(err, ShouldBeNil)

		_, err = h.orch.PollStatus(ctx, "scene-1", "")
		So(err, ShouldBeNil)
		_, cached := h.cache.Get(ctx, "scene-1")
		So(cached, ShouldBeTrue)

		So(h.repo.Delete(ctx, res.GenerationID, "alice"), ShouldBeNil)

		_, err = h.orch.PollStatus(ctx, "scene-1", "")
		So(errors.Is(err, ErrGenerationNotFound), ShouldBeTrue)
		_, cached = h.cache.Get(ctx, "scene-1")
		So(cached, ShouldBeFalse)
		_, cached = h.cache.Get(ctx, res.GenerationID)
		So(cached, ShouldBeFalse)
	})
}

func TestMemoryTaskCache(t *testing.T) {
	Convey("Entries expire after the TTL", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewMemoryTaskCache(time.Hour)
		c.now = func() time.Time { return now }

		c.Set(ctx, &generation.TaskView{GenerationID: "g1"}, "k1", "", "k2")
		v, ok := c.Get(ctx, "k2")
		So(ok, ShouldBeTrue)
		So(v.GenerationID, ShouldEqual, "g1")

		now = now.Add(2 * time.Hour)
		_, ok = c.Get(ctx, "k1")
		So(ok, ShouldBeFalse)

		c.Set(ctx, &generation.TaskView{GenerationID: "g2"}, "k3")
		c.Delete(ctx, "k3")
		_, ok = c.Get(ctx, "k3")
		So(ok, ShouldBeFalse)
	})
}
