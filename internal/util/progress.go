package util

import "math"

// CalculateCourseProgress 返回 0-100 的完成百分比
func CalculateCourseProgress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

// RoundTo 保留 n 位小数
func RoundTo(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}
