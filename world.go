package companion

import (
	"fmt"
	"strings"
	"time"
)

// ──────────────────────────────────────────────
// World state — time/location/weather snapshot for the prompt
// ──────────────────────────────────────────────

// WorldState is the opaque environment snapshot injected into each prompt.
// City and Weather are sourced externally (profile facts, weather adapter)
// and treated as plain strings.
type WorldState struct {
	TimeDescription string
	City            string
	Weather         string
	WeatherOK       bool
}

// Profile keys that may carry the user's last-known city.
var cityProfileKeys = []string{"所在城市", "所在地", "城市", "位置", "当前城市", "常住地"}

// CityFromFacts extracts the user's last-known city from profile facts.
func CityFromFacts(facts map[string]string) string {
	for _, key := range cityProfileKeys {
		if v := strings.TrimSpace(facts[key]); v != "" {
			return v
		}
	}
	return ""
}

// BuildWorldState renders the environment snapshot for one turn.
func BuildWorldState(now time.Time, facts map[string]string, weather string) WorldState {
	city := CityFromFacts(facts)
	return WorldState{
		TimeDescription: TimeDescription(now),
		City:            city,
		Weather:         weather,
		WeatherOK:       weather != "",
	}
}

// TimeDescription formats a time as "2006-01-02 周X 时段 15:04".
func TimeDescription(now time.Time) string {
	weekdays := []string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}
	weekday := weekdays[int(now.Weekday())]

	hour := now.Hour()
	var period string
	switch {
	case hour >= 5 && hour < 9:
		period = "清晨"
	case hour >= 9 && hour < 12:
		period = "上午"
	case hour >= 12 && hour < 14:
		period = "中午"
	case hour >= 14 && hour < 18:
		period = "下午"
	case hour >= 18 && hour < 23:
		period = "晚上"
	default:
		period = "深夜"
	}

	return fmt.Sprintf("%s %s %s %s", now.Format("2006-01-02"), weekday, period, now.Format("15:04"))
}

// FormatForPrompt renders the world-state section of the system context.
func (w WorldState) FormatForPrompt() string {
	city := w.City
	if city == "" {
		city = "未知"
	}
	weather := w.Weather
	available := "可用"
	if !w.WeatherOK {
		weather = "（未启用）"
		available = "不可用"
	}
	return "【现实环境感知】\n" +
		fmt.Sprintf("- 时间：%s\n", w.TimeDescription) +
		fmt.Sprintf("- 你的所在地：%s\n", city) +
		fmt.Sprintf("- 当地天气：%s\n", weather) +
		fmt.Sprintf("- 天气可用性：%s\n", available) +
		"【重要】当天气可用性=不可用时，坦诚说明拿不到实时天气，不要猜。"
}
