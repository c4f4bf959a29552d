package model

import (
	"fmt"
	"time"
)

// LocalTime 以 "YYYY-MM-DD HH:MM:SS" 格式序列化时间，用于管理后台的统计输出。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).UTC().Format(timeFormat))
	return []byte(formatted), nil
}

// NewLocalTime 把可空时间转换为 *LocalTime。
func NewLocalTime(t *time.Time) *LocalTime {
	if t == nil {
		return nil
	}
	lt := LocalTime(*t)
	return &lt
}
