package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"fable/internal/model/narration"
)

// EnsureIndexes 创建所有模型的索引
// 应用启动时统一调用；模型实现 Model 接口后在这里注册
func EnsureIndexes(db *mongo.Database) error {
	ctx := context.Background()

	models := []Model{
		&narration.Job{},
	}

	return EnsureAllIndexes(ctx, db, models...)
}
