package generation

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// StatusKind 生成流程所处阶段
type StatusKind string

const (
	KindPending         StatusKind = "pending"
	KindGeneratingScene StatusKind = "generating_scene"
	KindExtractingFrame StatusKind = "extracting_frame"
	KindLipSyncing      StatusKind = "lip_syncing_scene"
	KindReadyToCombine  StatusKind = "ready_to_combine"
	KindCombining       StatusKind = "combining_videos"
	KindCompleted       StatusKind = "completed"
	KindFailed          StatusKind = "failed"
)

// Status 带场景序号的状态
// Scene 仅对 generating_scene / lip_syncing_scene 有意义（从 1 开始）
// 持久化与展示时统一使用 String() 的结果，例如 generating_scene_3
type Status struct {
	Kind  StatusKind
	Scene int
}

func Pending() Status              { return Status{Kind: KindPending} }
func GeneratingScene(k int) Status { return Status{Kind: KindGeneratingScene, Scene: k} }
func ExtractingFrame() Status      { return Status{Kind: KindExtractingFrame} }
func LipSyncingScene(k int) Status { return Status{Kind: KindLipSyncing, Scene: k} }
func ReadyToCombine() Status       { return Status{Kind: KindReadyToCombine} }
func CombiningVideos() Status      { return Status{Kind: KindCombining} }
func Completed() Status            { return Status{Kind: KindCompleted} }
func Failed() Status               { return Status{Kind: KindFailed} }

// String 返回展示/持久化用的状态字符串
func (s Status) String() string {
	switch s.Kind {
	case KindGeneratingScene, KindLipSyncing:
		return fmt.Sprintf("%s_%d", s.Kind, s.Scene)
	case "":
		return string(KindPending)
	default:
		return string(s.Kind)
	}
}

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s.Kind == KindCompleted || s.Kind == KindFailed
}

// Is 判断阶段
func (s Status) Is(kind StatusKind) bool {
	return s.Kind == kind
}

// ParseStatus 解析状态字符串
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	switch StatusKind(raw) {
	case KindPending, KindExtractingFrame, KindReadyToCombine, KindCombining, KindCompleted, KindFailed:
		return Status{Kind: StatusKind(raw)}, nil
	case "":
		return Pending(), nil
	}

	for _, kind := range []StatusKind{KindGeneratingScene, KindLipSyncing} {
		prefix := string(kind) + "_"
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(raw, prefix))
		if err != nil || n < 1 {
			return Status{}, fmt.Errorf("invalid scene number in status %q", raw)
		}
		return Status{Kind: kind, Scene: n}, nil
	}

	return Status{}, fmt.Errorf("unknown status %q", raw)
}

// MarshalText JSON 输出为状态字符串
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 从状态字符串解析
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalBSONValue 以字符串形式存储，方便按 status 查询与展示
func (s Status) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(s.String())
}

// UnmarshalBSONValue 从字符串恢复
func (s *Status) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("status: expected bson string, got %s", t)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
