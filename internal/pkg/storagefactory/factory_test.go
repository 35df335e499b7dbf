package storagefactory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ugcstudio/internal/config"
)

func TestNewStorage(t *testing.T) {
	Convey("NewStorage", t, func() {
		Convey("rejects missing and unknown configs", func() {
			s, err := NewStorage(&config.StorageConfig{Type: "local"})
			So(err, ShouldNotBeNil)
			So(s, ShouldBeNil)

			s, err = NewStorage(&config.StorageConfig{Type: "oss"})
			So(err, ShouldNotBeNil)
			So(s, ShouldBeNil)

			_, err = NewStorage(&config.StorageConfig{Type: "s3"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLocalStorage(t *testing.T) {
	Convey("Given a local storage rooted in a temp dir", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		s, err := NewStorage(&config.StorageConfig{
			Type:  "local",
			Local: &config.LocalConfig{BasePath: dir, BaseURL: "http://localhost:8080/uploads/"},
		})
		So(err, ShouldBeNil)
		So(s.Type(), ShouldEqual, "local")

		Convey("put, exists and delete round-trip", func() {
			url, err := s.Put(ctx, "products/u1/a.png", strings.NewReader("png-bytes"), "image/png")
			So(err, ShouldBeNil)
			So(url, ShouldEqual, "http://localhost:8080/uploads/products/u1/a.png")

			raw, err := os.ReadFile(filepath.Join(dir, "products", "u1", "a.png"))
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual, "png-bytes")

			ok, err := s.Exists(ctx, "products/u1/a.png")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			So(s.Delete(ctx, "products/u1/a.png"), ShouldBeNil)
			ok, _ = s.Exists(ctx, "products/u1/a.png")
			So(ok, ShouldBeFalse)
			So(s.Delete(ctx, "products/u1/a.png"), ShouldBeNil)
		})

		Convey("keys cannot escape the base path", func() {
			_, err := s.Put(ctx, "../../etc/evil.txt", strings.NewReader("x"), "text/plain")
			So(err, ShouldBeNil)
			_, statErr := os.Stat(filepath.Join(dir, "etc", "evil.txt"))
			So(statErr, ShouldBeNil)
		})
	})
}
