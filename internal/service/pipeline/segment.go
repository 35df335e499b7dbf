package pipeline

import (
	"strings"

	"ugcstudio/internal/model/generation"
)

// SplitScript 把脚本按词数均分为 ceil(duration/8) 段
// 每段 ceil(words/n) 个词，尾部不足时最后几段可能为空
func SplitScript(script string, durationSeconds int) []string {
	n := generation.SceneCount(durationSeconds)
	if n <= 0 {
		return nil
	}

	words := strings.Fields(script)
	if n == 1 {
		return []string{strings.Join(words, " ")}
	}

	perScene := (len(words) + n - 1) / n
	scenes := make([]string, n)
	for i := 0; i < n; i++ {
		start := i * perScene
		if start >= len(words) {
			break
		}
		end := min(start+perScene, len(words))
		scenes[i] = strings.Join(words[start:end], " ")
	}
	return scenes
}
