package calendar

import (
	"time"
)

// Все даты считаются в часовом поясе биржи (US Eastern Time).
var marketLocation *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata недоступна - фиксированный offset без перехода на летнее время
		loc = time.FixedZone("ET", -5*60*60)
	}
	marketLocation = loc
}

// Clock источник текущей торговой даты. Передается компонентам
// интерфейсом, чтобы в тестах подставлять фиксированную дату.
type Clock struct{}

// Today возвращает сегодняшнюю дату (ET, время обнулено)
func (Clock) Today() time.Time {
	return DateOf(time.Now().In(marketLocation))
}

// DateOf обнуляет время, оставляя только дату
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween количество календарных дней от from до to
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// IsTradingDay сообщает, является ли дата торговым днем американского
// рынка: не выходной и не биржевой праздник.
func IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := marketHolidays(d.Year())[DateOf(d).Format("2006-01-02")]
	return !holiday
}

// NextTradingDay ближайший торговый день после указанной даты
func NextTradingDay(from time.Time) time.Time {
	d := from.AddDate(0, 0, 1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return DateOf(d)
}

// PreviousTradingDay ближайший торговый день до указанной даты
func PreviousTradingDay(from time.Time) time.Time {
	d := from.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return DateOf(d)
}

// marketHolidays праздники, в которые биржа закрыта. Праздники,
// выпадающие на выходные, переносятся (суббота -> пятница,
// воскресенье -> понедельник).
func marketHolidays(year int) map[string]struct{} {
	days := []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), // New Year's Day
		nthWeekday(year, time.January, time.Monday, 3),         // MLK Day
		nthWeekday(year, time.February, time.Monday, 3),        // Presidents' Day
		goodFriday(year),
		lastWeekday(year, time.May, time.Monday),              // Memorial Day
		time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC),  // Juneteenth
		time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC),   // Independence Day
		nthWeekday(year, time.September, time.Monday, 1),      // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4),     // Thanksgiving
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC), // Christmas
	}

	holidays := make(map[string]struct{}, len(days))
	for _, d := range days {
		switch d.Weekday() {
		case time.Saturday:
			d = d.AddDate(0, 0, -1)
		case time.Sunday:
			d = d.AddDate(0, 0, 1)
		}
		holidays[d.Format("2006-01-02")] = struct{}{}
	}
	return holidays
}

// nthWeekday n-ое вхождение дня недели в месяце
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday последнее вхождение дня недели в месяце
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// goodFriday Страстная пятница (за два дня до Пасхи),
// алгоритм Meeus/Jones/Butcher
func goodFriday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1

	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return easter.AddDate(0, 0, -2)
}
