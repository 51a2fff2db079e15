package calendar

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay_Weekends(t *testing.T) {
	if IsTradingDay(date(2025, time.March, 8)) {
		t.Error("Saturday should not be a trading day")
	}
	if IsTradingDay(date(2025, time.March, 9)) {
		t.Error("Sunday should not be a trading day")
	}
	if !IsTradingDay(date(2025, time.March, 10)) {
		t.Error("regular Monday should be a trading day")
	}
}

func TestIsTradingDay_Holidays(t *testing.T) {
	tests := []struct {
		name string
		d    time.Time
	}{
		{"New Year 2025", date(2025, time.January, 1)},
		{"MLK Day 2025", date(2025, time.January, 20)},
		{"Presidents Day 2025", date(2025, time.February, 17)},
		{"Memorial Day 2025", date(2025, time.May, 26)},
		{"Juneteenth 2025", date(2025, time.June, 19)},
		{"Independence Day 2025", date(2025, time.July, 4)},
		{"Labor Day 2025", date(2025, time.September, 1)},
		{"Thanksgiving 2025", date(2025, time.November, 27)},
		{"Christmas 2025", date(2025, time.December, 25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsTradingDay(tt.d) {
				t.Errorf("IsTradingDay(%s) = true, want false", tt.d.Format("2006-01-02"))
			}
		})
	}
}

func TestGoodFriday(t *testing.T) {
	tests := []struct {
		year int
		want time.Time
	}{
		{2024, date(2024, time.March, 29)},
		{2025, date(2025, time.April, 18)},
		{2026, date(2026, time.April, 3)},
	}

	for _, tt := range tests {
		got := goodFriday(tt.year)
		if !got.Equal(tt.want) {
			t.Errorf("goodFriday(%d) = %s, want %s", tt.year, got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
		}
	}
}

func TestHolidayObservedShift(t *testing.T) {
	// 4 июля 2026 - суббота, биржа закрыта в пятницу 3 июля
	if IsTradingDay(date(2026, time.July, 3)) {
		t.Error("observed Independence Day (Friday) should not be a trading day")
	}
	if !IsTradingDay(date(2026, time.July, 6)) {
		t.Error("Monday after Independence Day weekend should be a trading day")
	}
}

func TestNextPreviousTradingDay(t *testing.T) {
	// Пятница 17.04.2025 -> следующий торговый день понедельник 21.04
	// (18.04 - Страстная пятница)
	got := NextTradingDay(date(2025, time.April, 17))
	if !got.Equal(date(2025, time.April, 21)) {
		t.Errorf("NextTradingDay = %s, want 2025-04-21", got.Format("2006-01-02"))
	}

	got = PreviousTradingDay(date(2025, time.April, 21))
	if !got.Equal(date(2025, time.April, 17)) {
		t.Errorf("PreviousTradingDay = %s, want 2025-04-17", got.Format("2006-01-02"))
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same day", date(2025, time.May, 1), date(2025, time.May, 1), 0},
		{"29 days", date(2025, time.April, 2), date(2025, time.May, 1), 29},
		{"30 days", date(2025, time.April, 1), date(2025, time.May, 1), 30},
		{"across year", date(2024, time.December, 31), date(2025, time.January, 1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.from, tt.to); got != tt.want {
				t.Errorf("DaysBetween = %d, want %d", got, tt.want)
			}
		})
	}
}
