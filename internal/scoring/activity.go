package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/session"
)

// DefaultActivityWindow is the trailing window for daily activity.
const DefaultActivityWindow = 90 * 24 * time.Hour

// Time-of-day slots.
const (
	SlotMorning   = "morning"   // 06-11
	SlotAfternoon = "afternoon" // 12-17
	SlotEvening   = "evening"   // 18-23
	SlotNight     = "night"     // 00-05
)

// Seasons, northern hemisphere.
const (
	SeasonWinter = "winter"
	SeasonSpring = "spring"
	SeasonSummer = "summer"
	SeasonAutumn = "autumn"
)

// Productivity measures how effectively a user completes what they start.
type Productivity struct {
	TasksPerHour    float64 `json:"tasks_per_hour"`
	CompletionRate  float64 `json:"completion_rate"` // 0-100
	EfficiencyScore float64 `json:"efficiency_score"`
	TrackedTasks    int     `json:"tracked_tasks"`
}

// ActivityScore is the consistency and productivity result for one user.
type ActivityScore struct {
	DailyMinutes     map[string]float64 `json:"daily_minutes"` // keyed 2006-01-02, UTC
	WeeklyMinutes    map[string]float64 `json:"weekly_minutes"`
	TimeSlots        map[string]float64 `json:"time_slots"` // share of events, sums to 1
	PeakHours        []int              `json:"peak_hours"`
	Variance         float64            `json:"variance"`
	RegularityIndex  float64            `json:"regularity_index"`
	ActiveDays       int                `json:"active_days"`
	ConsistencyScore float64            `json:"consistency_score"`
	Factors          []Factor           `json:"consistency_factors"`
	Burst            bool               `json:"burst_activity"`
	WeekendRatio     float64            `json:"weekend_ratio"`
	Productivity     Productivity       `json:"productivity"`
	Seasonal         map[string]float64 `json:"seasonal"`
	Default          bool               `json:"default"`
}

// NeutralActivityScore is returned when there are no events to score.
func NeutralActivityScore() *ActivityScore {
	return &ActivityScore{
		DailyMinutes:     map[string]float64{},
		WeeklyMinutes:    map[string]float64{},
		TimeSlots:        map[string]float64{},
		PeakHours:        []int{},
		RegularityIndex:  50,
		ConsistencyScore: 50,
		Factors:          consistencyFactors(50, 50),
		Productivity:     Productivity{EfficiencyScore: 50},
		Seasonal:         map[string]float64{},
		Default:          true,
	}
}

// ActivityScorer computes ActivityScore over a trailing window of days.
type ActivityScorer struct {
	Window time.Duration
}

// NewActivityScorer returns a scorer; a window shorter than one day uses
// DefaultActivityWindow.
func NewActivityScorer(window time.Duration) *ActivityScorer {
	if window < 24*time.Hour {
		window = DefaultActivityWindow
	}
	return &ActivityScorer{Window: window}
}

// ScoreActivity is a convenience for NewActivityScorer(0).Score.
func ScoreActivity(evts []*events.BehaviorEvent, sessions []session.Session, now time.Time) *ActivityScore {
	return NewActivityScorer(0).Score(evts, sessions, now)
}

// Score derives the activity score. Session minutes are attributed to the
// UTC day the session started.
func (s *ActivityScorer) Score(evts []*events.BehaviorEvent, sessions []session.Session, now time.Time) *ActivityScore {
	if len(evts) == 0 {
		return NeutralActivityScore()
	}

	days := int(s.Window / (24 * time.Hour))
	today := dayStart(now.UTC())
	first := today.AddDate(0, 0, -(days - 1))

	out := &ActivityScore{
		DailyMinutes:  make(map[string]float64, days),
		WeeklyMinutes: make(map[string]float64, 7),
		TimeSlots:     make(map[string]float64, 4),
		Seasonal:      make(map[string]float64, 4),
	}
	for d := 0; d < days; d++ {
		out.DailyMinutes[first.AddDate(0, 0, d).Format(time.DateOnly)] = 0
	}

	var totalMinutes, weekendMinutes float64
	for _, sess := range sessions {
		start := sess.Start().UTC()
		minutes := sessionMinutes(sess)
		totalMinutes += minutes
		out.WeeklyMinutes[start.Weekday().String()] += minutes
		if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekendMinutes += minutes
		}
		if day := dayStart(start); !day.Before(first) && !day.After(today) {
			out.DailyMinutes[day.Format(time.DateOnly)] += minutes
		}
	}
	if totalMinutes > 0 {
		out.WeekendRatio = round2(weekendMinutes / totalMinutes)
	}

	var hourly [24]int
	for _, e := range evts {
		ts := e.Timestamp.UTC()
		hourly[ts.Hour()]++
		out.TimeSlots[timeSlot(ts.Hour())]++
		out.Seasonal[season(ts.Month())]++
	}
	normalize(out.TimeSlots, float64(len(evts)))
	normalize(out.Seasonal, float64(len(evts)))
	out.PeakHours = peakHours(hourly, 3)

	s.consistency(out, days)
	out.Productivity = productivity(evts, totalMinutes)
	return out
}

func (s *ActivityScorer) consistency(out *ActivityScore, days int) {
	var sum, peak float64
	for _, m := range out.DailyMinutes {
		sum += m
		if m > peak {
			peak = m
		}
		if m > 0 {
			out.ActiveDays++
		}
	}
	mean := sum / float64(days)

	var sq float64
	for _, m := range out.DailyMinutes {
		sq += (m - mean) * (m - mean)
	}
	variance := sq / float64(days)
	out.Variance = round2(variance)

	if mean > 0 {
		out.RegularityIndex = round2(math.Max(0, 100-(math.Sqrt(variance)/mean)*100))
	}
	activeFraction := float64(out.ActiveDays) / float64(days) * 100
	out.Factors = consistencyFactors(out.RegularityIndex, round2(activeFraction))
	out.ConsistencyScore = round2(math.Min(100, WeightedScore(out.Factors)))
	out.Burst = mean > 0 && peak > mean*3 && variance > mean*mean
}

func consistencyFactors(regularity, activeDays float64) []Factor {
	return []Factor{
		{Name: "regularity_index", Weight: 0.5, Score: regularity},
		{Name: "active_days", Weight: 0.5, Score: activeDays},
	}
}

// productivity averages the task and airdrop completion ratios that have
// any starts recorded.
func productivity(evts []*events.BehaviorEvent, totalMinutes float64) Productivity {
	var starts, completes, joins, airdrops int
	for _, e := range evts {
		switch e.Action {
		case events.ActionTaskStart:
			starts++
		case events.ActionTaskComplete:
			completes++
		case events.ActionAirdropJoin:
			joins++
		case events.ActionAirdropComplete:
			airdrops++
		}
	}

	var p Productivity
	p.TrackedTasks = max(starts, completes) + max(joins, airdrops)

	var ratios []float64
	if starts > 0 {
		ratios = append(ratios, math.Min(1, float64(completes)/float64(starts)))
	}
	if joins > 0 {
		ratios = append(ratios, math.Min(1, float64(airdrops)/float64(joins)))
	}
	if len(ratios) > 0 {
		sum := 0.0
		for _, r := range ratios {
			sum += r
		}
		p.CompletionRate = round2(sum / float64(len(ratios)) * 100)
	}

	if hours := totalMinutes / 60; hours > 0 {
		p.TasksPerHour = round2(float64(completes+airdrops) / hours)
	}
	p.EfficiencyScore = round2(math.Min(100, (p.CompletionRate+math.Min(100, p.TasksPerHour*20))/2))
	return p
}

// sessionMinutes is the larger of the session's wall-clock span and the
// dwell time its events reported, so single-event sessions still count.
func sessionMinutes(s session.Session) float64 {
	var dwell time.Duration
	for _, e := range s.Events {
		dwell += e.Duration()
	}
	d := s.Duration()
	if dwell > d {
		d = dwell
	}
	return d.Minutes()
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timeSlot(hour int) string {
	switch {
	case hour < 6:
		return SlotNight
	case hour < 12:
		return SlotMorning
	case hour < 18:
		return SlotAfternoon
	default:
		return SlotEvening
	}
}

func season(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonAutumn
	}
}

func normalize(m map[string]float64, total float64) {
	for k, v := range m {
		m[k] = round2(v / total)
	}
}

func peakHours(hourly [24]int, n int) []int {
	hours := make([]int, 0, 24)
	for h, c := range hourly {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return hourly[hours[i]] > hourly[hours[j]]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}
