package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ugcstudio/internal/model/generation"
	"ugcstudio/internal/pkg/storage/local"
	genrepo "ugcstudio/internal/repository/generation"
)

func seed(repo *genrepo.MemoryRepo, id, owner string, status generation.Status, final string) {
	g := &generation.Generation{ID: id, TotalScenes: 1, Status: status, FinalVideoURL: final}
	if owner != "" {
		g.UserID = &owner
	}
	if err := repo.Create(context.Background(), g); err != nil {
		panic(err)
	}
}

func TestLibraryService(t *testing.T) {
	Convey("Given a library with videos from two users", t, func() {
		ctx := context.Background()
		repo := genrepo.NewMemoryRepo()
		seed(repo, "g1", "alice", generation.Completed(), "https://cdn.example.com/g1.mp4")
		seed(repo, "g2", "alice", generation.GeneratingScene(1), "")
		seed(repo, "g3", "bob", generation.Completed(), "https://cdn.example.com/g3.mp4")
		seed(repo, "g4", "", generation.Completed(), "https://cdn.example.com/g4.mp4")
		svc := NewLibraryService(repo)

		Convey("listing is scoped to the owner", func() {
			all, err := svc.List(ctx, "alice", false)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 2)

			done, err := svc.List(ctx, "alice", true)
			So(err, ShouldBeNil)
			So(done, ShouldHaveLength, 1)
			So(done[0].ID, ShouldEqual, "g1")
		})

		Convey("other users' videos look missing", func() {
			_, err := svc.Get(ctx, "alice", "g3")
			So(err, ShouldEqual, ErrVideoNotFound)
			_, err = svc.Get(ctx, "alice", "g4")
			So(err, ShouldEqual, ErrVideoNotFound)

			g, err := svc.Get(ctx, "bob", "g3")
			So(err, ShouldBeNil)
			So(g.FinalVideoURL, ShouldEqual, "https://cdn.example.com/g3.mp4")
		})

		Convey("delete is soft and owner-only", func() {
			So(svc.Delete(ctx, "bob", "g1"), ShouldEqual, ErrVideoNotFound)
			So(svc.Delete(ctx, "alice", "g1"), ShouldBeNil)
			_, err := svc.Get(ctx, "alice", "g1")
			So(err, ShouldEqual, ErrVideoNotFound)
		})
	})
}

// 1x1 PNG
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

func TestAssetService(t *testing.T) {
	Convey("Given an asset service on local storage", t, func() {
		ctx := context.Background()
		store, err := local.NewLocalStorage(t.TempDir(), "http://localhost:8080/uploads")
		So(err, ShouldBeNil)
		svc := NewAssetService(store)

		Convey("png uploads are stored under the user's prefix", func() {
			res, err := svc.UploadProductImage(ctx, &UploadProductImageRequest{
				UserID: "alice", Size: int64(len(pngBytes)), Data: bytes.NewReader(pngBytes),
			})
			So(err, ShouldBeNil)
			So(res.ContentType, ShouldEqual, "image/png")
			So(res.Key, ShouldStartWith, "products/alice/")
			So(res.Key, ShouldEndWith, ".png")
			So(res.URL, ShouldEqual, "http://localhost:8080/uploads/"+res.Key)

			ok, err := store.Exists(ctx, res.Key)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("non-images and oversized files are rejected", func() {
			_, err := svc.UploadProductImage(ctx, &UploadProductImageRequest{
				UserID: "alice", Size: 5, Data: strings.NewReader("hello"),
			})
			So(err, ShouldEqual, ErrUnsupportedImage)

			_, err = svc.UploadProductImage(ctx, &UploadProductImageRequest{
				UserID: "alice", Size: MaxProductImageSize + 1, Data: bytes.NewReader(pngBytes),
			})
			So(err, ShouldEqual, ErrImageTooLarge)
		})
	})
}
