package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID int64) string {
	return fmt.Sprintf("exam:%d:monitor", examID)
}

// ExamViolationsKey returns the list key holding an attempt's recent violations
func (r *CacheKeyStruct) ExamViolationsKey(examID int64) string {
	return fmt.Sprintf("exam:%d:violations", examID)
}

var CacheKey = NewCacheKeyStruct()
