package pipeline

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSplitScript(t *testing.T) {
	Convey("SplitScript", t, func() {
		Convey("one scene keeps every word", func() {
			So(SplitScript("  hello   big\nworld ", 8), ShouldResemble, []string{"hello big world"})
		})

		Convey("words are spread evenly", func() {
			So(SplitScript("a b c d e f g", 24), ShouldResemble, []string{"a b c", "d e f", "g"})
		})

		Convey("short scripts leave trailing scenes empty", func() {
			So(SplitScript("a b", 32), ShouldResemble, []string{"a", "b", "", ""})
		})

		Convey("partial scenes round up", func() {
			So(SplitScript("a b c", 9), ShouldHaveLength, 2)
		})

		Convey("no duration yields no scenes", func() {
			So(SplitScript("a b c", 0), ShouldBeNil)
		})
	})
}

func TestBuildScenePrompt(t *testing.T) {
	Convey("BuildScenePrompt", t, func() {
		first := BuildScenePrompt(" Hi there ", true, false)
		So(first, ShouldStartWith, "Hi there ")
		So(first, ShouldContainSubstring, cueProductInHand)
		So(first, ShouldContainSubstring, cueFirstScene)
		So(strings.Contains(first, cueContinuation), ShouldBeFalse)

		next := BuildScenePrompt("More", false, true)
		So(next, ShouldContainSubstring, cueHandsOut)
		So(next, ShouldContainSubstring, cueContinuation)
		So(strings.Contains(next, cueFirstScene), ShouldBeFalse)
		So(next, ShouldContainSubstring, cueNoVoiceover)
	})
}
