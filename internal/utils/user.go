package utils

import "time"

// ReputationLevel 根据声望返回用户等级
func ReputationLevel(reputation int) string {
	switch {
	case reputation >= 1000:
		return "expert"
	case reputation >= 200:
		return "trusted"
	case reputation >= 50:
		return "established"
	case reputation >= 10:
		return "contributor"
	default:
		return "newcomer"
	}
}

// DaysSinceJoined 注册天数
func DaysSinceJoined(createdAt time.Time) int {
	return int(time.Since(createdAt).Hours() / 24)
}
