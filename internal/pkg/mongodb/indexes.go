package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"ugcstudio/internal/model/generation"
)

// EnsureIndexes 创建所有模型的索引
// 应用启动时调用；新增集合时把模型加入列表即可
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	models := []Model{
		&generation.Generation{},
	}
	return EnsureAllIndexes(ctx, db, models...)
}
