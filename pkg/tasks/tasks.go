// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "strconv"

// 任务动作
const (
	ActionIndex  = "index"
	ActionDelete = "delete"
)

// PersonIndexTask 描述一次历史人物索引同步任务。
type PersonIndexTask struct {
	Action   string `json:"action"`
	PersonID uint   `json:"person_id"`
	Name     string `json:"name"`
}

// AttemptKey 返回该任务在 Redis 中的失败计数 key
func (t PersonIndexTask) AttemptKey() string {
	return "kafka:attempts:person:" + t.Action + ":" + strconv.FormatUint(uint64(t.PersonID), 10)
}

