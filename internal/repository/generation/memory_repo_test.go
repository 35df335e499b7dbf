package generation

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"ugcstudio/internal/model/generation"
)

func TestMemoryRepo(t *testing.T) {
	Convey("Given a memory repository with one record", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		repo := NewMemoryRepo()
		repo.SetClock(func() time.Time { return now })

		owner := "user-1"
		So(repo.Create(ctx, &generation.Generation{
			ID: "g1", UserID: &owner, TotalScenes: 2, Status: generation.Pending(),
		}), ShouldBeNil)

		Convey("updates are compare-and-swap on version", func() {
			a, _ := repo.FindByID(ctx, "g1")
			b, _ := repo.FindByID(ctx, "g1")

			a.CurrentTaskID = "scene-1"
			So(repo.Update(ctx, a), ShouldBeNil)
			So(a.Version, ShouldEqual, 2)

			b.CurrentTaskID = "scene-x"
			So(repo.Update(ctx, b), ShouldEqual, ErrVersionConflict)

			got, err := repo.FindByCurrentTaskID(ctx, "scene-1")
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, "g1")
			So(got.SyncTaskIDs, ShouldHaveLength, 2)
		})

		Convey("step locks expire", func() {
			lease, ok, err := repo.AcquireStep(ctx, "g1", "scene:1", time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(lease.Equal(now.Add(time.Minute)), ShouldBeTrue)

			_, ok, _ = repo.AcquireStep(ctx, "g1", "scene:1", time.Minute)
			So(ok, ShouldBeFalse)
			_, ok, _ = repo.AcquireStep(ctx, "g1", "scene:2", time.Minute)
			So(ok, ShouldBeTrue)

			now = now.Add(2 * time.Minute)
			lease, ok, _ = repo.AcquireStep(ctx, "g1", "scene:1", time.Minute)
			So(ok, ShouldBeTrue)

			So(repo.ReleaseStep(ctx, "g1", "scene:1", lease), ShouldBeNil)
			_, ok, _ = repo.AcquireStep(ctx, "g1", "scene:1", time.Minute)
			So(ok, ShouldBeTrue)
		})

		Convey("an expired holder cannot release a lock taken over by someone else", func() {
			stale, ok, _ := repo.AcquireStep(ctx, "g1", "combine", time.Minute)
			So(ok, ShouldBeTrue)

			now = now.Add(2 * time.Minute)
			_, ok, _ = repo.AcquireStep(ctx, "g1", "combine", time.Minute)
			So(ok, ShouldBeTrue)

			So(repo.ReleaseStep(ctx, "g1", "combine", stale), ShouldBeNil)
			_, ok, _ = repo.AcquireStep(ctx, "g1", "combine", time.Minute)
			So(ok, ShouldBeFalse)
		})

		Convey("listing and soft delete respect the owner", func() {
			gens, err := repo.ListByUser(ctx, "user-1", false)
			So(err, ShouldBeNil)
			So(gens, ShouldHaveLength, 1)

			gens, _ = repo.ListByUser(ctx, "user-1", true)
			So(gens, ShouldBeEmpty)

			So(repo.Delete(ctx, "g1", "someone-else"), ShouldEqual, ErrNotFound)
			So(repo.Delete(ctx, "g1", "user-1"), ShouldBeNil)

			_, err = repo.FindByID(ctx, "g1")
			So(err, ShouldEqual, ErrNotFound)
		})
	})
}
