package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:answers", studentID, testID)
}

// TestPayloadKey returns the cache key for a test's student-facing payload
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// TestAnswerKey returns the cache key for a test's MCQ answer key
func (r *CacheKeyStruct) TestAnswerKey(testID string) string {
	return fmt.Sprintf("test:%s:key", testID)
}

// StudentViolationCountKey returns the cache key for a student's live violation counter
func (r *CacheKeyStruct) StudentViolationCountKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:violations", studentID, testID)
}

var CacheKey = NewCacheKeyStruct()
