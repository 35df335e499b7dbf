package pipeline

import "strings"

// 导演指令片段，追加在每个场景的台词之后
const (
	cueNoVoiceover = "IMPORTANT: No voiceover or narration. Only the avatar speaks directly to camera. No background voice."
	cueSelfie      = "The video should look like a smartphone selfie, with the camera about 50cm from the avatar. " +
		"Focus mostly on the face and natural expressions. The avatar breathes naturally with subtle shoulder movement " +
		"and blinks every few seconds. Facial expressions should match the emotional tone of the message."
	cueProductInHand = "The left hand holds the product at chest level, about 15cm from camera with the label visible. " +
		"The right hand rests out of frame. At the end, the left hand lowers the product smoothly. " +
		"CRITICAL: The product MUST be clearly visible in the final frame of the scene. Position the product prominently " +
		"in the last 2 seconds so it can be used as the starting frame for the next scene."
	cueHandsOut = "Both hands rest out of frame. If a small gesture is needed, just the right hand can briefly appear " +
		"and quickly exit within 2 seconds."
	cueCleanEnding = "CRITICAL: The avatar must finish speaking on a COMPLETE WORD - never cut mid-word. " +
		"The final spoken word should be clearly articulated. At the scene end, the avatar holds a comfortable, still pose " +
		"for about 1.5 seconds, like pressing pause mid-conversation. Avoid fading, zooming, waving or looking away. " +
		"The camera should be completely still for the final 2 seconds, with the avatar centered and visible for smooth transition."
	cueFirstScene = "Start with a medium close-up showing shoulders to head. Make direct eye contact within the first 2 seconds. " +
		"Use a natural handheld camera feel."
	cueContinuation = "Continue the talking-head style from before with a slight camera angle change."
	cuePacing       = "Deliver the message naturally at a conversational pace with 16-22 words, including natural pauses for breathing."
)

// BuildScenePrompt 组合场景台词与导演指令
// 首场景与续接场景的镜头指令不同；提供产品图时加入手持产品的指令
func BuildScenePrompt(sceneScript string, withProduct, continuation bool) string {
	cues := []string{cueNoVoiceover, cueSelfie}
	if withProduct {
		cues = append(cues, cueProductInHand)
	} else {
		cues = append(cues, cueHandsOut)
	}
	cues = append(cues, cueCleanEnding)
	if continuation {
		cues = append(cues, cueContinuation)
	} else {
		cues = append(cues, cueFirstScene)
	}
	cues = append(cues, cuePacing)

	return strings.TrimSpace(sceneScript) + " " + strings.Join(cues, " ")
}
