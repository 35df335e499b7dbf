// Package ai 基于 eino ChatModel 的 UGC 脚本生成
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"ugcstudio/internal/ai/component"
	"ugcstudio/internal/config"
	"ugcstudio/internal/model/generation"
)

const (
	minWordsPerScene  = 16
	maxWordsPerScene  = 22
	maxStructureScene = 8
)

// ugcStructures 按场景数划分的 UGC 叙事结构
var ugcStructures = map[int]string{
	1: "Hook/CTA Combo - Direct, high-energy pitch",
	2: "Scene 1: Hook + Interest Peak | Scene 2: Value + CTA",
	3: "Scene 1: Hook | Scene 2: Interest Peak + Value | Scene 3: Social Proof + CTA",
	4: "Scene 1: Hook + Problem Tease | Scene 2: Interest Peak + Problem Deep Dive | Scene 3: Value + Solution | Scene 4: Social Proof + CTA",
	5: "Scene 1: Hook + Attention Grab | Scene 2: Problem Details + Interest Peak | Scene 3: Solution + Value | Scene 4: Social Proof + Results | Scene 5: Strong CTA + Urgency",
	6: "Scene 1: Hook | Scene 2: Problem + Interest Peak | Scene 3: Problem Deep Dive + Empathy | Scene 4: Solution + Key Value | Scene 5: Social Proof + Results | Scene 6: Benefits Recap + CTA",
	7: "Scene 1: Hook | Scene 2: Problem Introduction | Scene 3: Problem Agitation + Interest Peak | Scene 4: Solution + Value | Scene 5: Solution Deep Dive | Scene 6: Social Proof + Results | Scene 7: Benefits + Strong CTA",
	8: "Scene 1: Hook | Scene 2: Problem Introduction | Scene 3: Problem Expansion + Interest Peak | Scene 4: Solution Introduction | Scene 5: Solution Value Proposition | Scene 6: Social Proof Part 1 | Scene 7: Social Proof Part 2 + Results | Scene 8: Benefits Recap + Urgent CTA",
}

var languageNames = map[string]string{
	"bg": "Bulgarian",
	"en": "English",
	"de": "German",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"ro": "Romanian",
	"ru": "Russian",
	"zh": "Chinese",
}

// ErrEmptyScript 模型没有返回任何文本
var ErrEmptyScript = errors.New("no script generated")

// ScriptRequest 脚本生成请求
type ScriptRequest struct {
	ProductName        string `json:"product_name" validate:"required"`
	ProductDescription string `json:"product_description,omitempty"`
	Tone               string `json:"tone,omitempty"`
	Duration           int    `json:"duration,omitempty" validate:"gte=0,lte=64"`
	Language           string `json:"language,omitempty"`
}

// ScriptResult 脚本生成结果
type ScriptResult struct {
	Script       string `json:"script"`
	Scenes       int    `json:"scenes"`
	WordCount    int    `json:"word_count"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// ScriptGenerator UGC 脚本生成器
type ScriptGenerator struct {
	chatModel model.BaseChatModel
	validate  *validator.Validate
}

// NewScriptGenerator 按配置创建生成器
func NewScriptGenerator(ctx context.Context, cfg *config.AIConfig) (*ScriptGenerator, error) {
	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return NewScriptGeneratorWithModel(chatModel), nil
}

// NewScriptGeneratorWithModel 使用已有的 ChatModel
func NewScriptGeneratorWithModel(chatModel model.BaseChatModel) *ScriptGenerator {
	return &ScriptGenerator{chatModel: chatModel, validate: validator.New()}
}

// Generate 生成只包含台词的脚本
func (g *ScriptGenerator) Generate(ctx context.Context, req *ScriptRequest) (*ScriptResult, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	if err := g.validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Duration == 0 {
		req.Duration = 32
	}
	if req.Tone == "" {
		req.Tone = "friendly"
	}
	if req.Language == "" {
		req.Language = "bg"
	}

	scenes := generation.SceneCount(req.Duration)
	messages := []*schema.Message{
		schema.SystemMessage(buildSystemPrompt(req, scenes)),
		schema.UserMessage(buildUserPrompt(req, scenes)),
	}

	resp, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate script: %w", err)
	}

	script := strings.TrimSpace(resp.Content)
	if script == "" {
		return nil, ErrEmptyScript
	}

	result := &ScriptResult{
		Script:    script,
		Scenes:    scenes,
		WordCount: len(strings.Fields(script)),
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		result.PromptTokens = resp.ResponseMeta.Usage.PromptTokens
		result.OutputTokens = resp.ResponseMeta.Usage.CompletionTokens
	}

	minWords, maxWords := scenes*minWordsPerScene, scenes*maxWordsPerScene
	if result.WordCount < minWords || result.WordCount > maxWords {
		log.Warn().
			Int("words", result.WordCount).
			Int("min", minWords).
			Int("max", maxWords).
			Msg("generated script outside word budget")
	}
	return result, nil
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

func structureFor(scenes int) string {
	if s, ok := ugcStructures[scenes]; ok {
		return s
	}
	return ugcStructures[maxStructureScene]
}

func buildSystemPrompt(req *ScriptRequest, scenes int) string {
	lang := languageName(req.Language)
	minWords, maxWords := scenes*minWordsPerScene, scenes*maxWordsPerScene

	var b strings.Builder
	b.WriteString("You are an expert UGC (User Generated Content) copywriter specialist.\n\n")
	b.WriteString("YOUR ROLE:\n")
	fmt.Fprintf(&b, "Generate a %s-language UGC video script ONLY. Do NOT include any instructions about avatar behavior, camera angles, or visual directions.\n\n", lang)
	b.WriteString("SCRIPT REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Language: %s ONLY\n", lang)
	fmt.Fprintf(&b, "- Total duration: %d seconds\n", req.Duration)
	fmt.Fprintf(&b, "- Number of scenes: %d (each scene is exactly %d seconds)\n", scenes, generation.SceneSeconds)
	fmt.Fprintf(&b, "- Word count: %d-%d words total (%d-%d words per scene)\n", minWords, maxWords, minWordsPerScene, maxWordsPerScene)
	b.WriteString("- Each scene MUST end on a complete word (never cut mid-word)\n")
	b.WriteString("- Natural, conversational speaking pace\n\n")
	fmt.Fprintf(&b, "UGC STRUCTURE FOR %d SCENES:\n%s\n\n", scenes, structureFor(scenes))
	b.WriteString("UGC PRINCIPLES:\n")
	b.WriteString("- Sound authentic and relatable, like a real person recommending to a friend\n")
	b.WriteString("- Focus on benefits and real-world use\n")
	b.WriteString("- Use natural language, avoid a corporate or salesy tone\n")
	b.WriteString("- Be specific and credible\n\n")
	b.WriteString("OUTPUT FORMAT:\n")
	fmt.Fprintf(&b, "Return ONLY the script text. No scene numbers, no directions, no stage instructions. Just the words the avatar will speak, naturally paced for %d seconds.", req.Duration)
	return b.String()
}

func buildUserPrompt(req *ScriptRequest, scenes int) string {
	lang := languageName(req.Language)

	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", req.ProductName)
	if req.ProductDescription != "" {
		fmt.Fprintf(&b, "Description: %s\n", req.ProductDescription)
	}
	fmt.Fprintf(&b, "Tone: %s\n\n", req.Tone)
	fmt.Fprintf(&b, "Generate a %d-second UGC video script in %s following the %d-scene structure defined above.\n\n", req.Duration, lang, scenes)
	b.WriteString("CRITICAL RULES:\n")
	fmt.Fprintf(&b, "- ONLY %s language\n", lang)
	fmt.Fprintf(&b, "- %d-%d words total\n", scenes*minWordsPerScene, scenes*maxWordsPerScene)
	b.WriteString("- End each scene on a complete word\n")
	b.WriteString("- NO avatar behavior descriptions\n")
	b.WriteString("- NO camera instructions\n")
	b.WriteString("- ONLY the spoken script text")
	return b.String()
}
