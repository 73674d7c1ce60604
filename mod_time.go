package trailfx

import (
	"time"
)

// Time is the frame clock. With FixedDt set every frame advances by exactly
// FixedDt, which keeps chain simulation reproducible.
type Time struct {
	Time    time.Time
	Dt      time.Duration
	FixedDt time.Duration
	Frame   uint64
}

// Seconds is Dt in seconds.
func (t *Time) Seconds() float32 {
	return float32(t.Dt.Seconds())
}

type TimeModule struct {
	FixedDt time.Duration
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{
		Time:    time.Now(),
		FixedDt: mod.FixedDt,
	})
	cmd.UseSystem(System(timeSystem).InStage(Prelude))
}

func timeSystem(t *Time) {
	t.Frame++
	if t.FixedDt > 0 {
		t.Dt = t.FixedDt
		t.Time = t.Time.Add(t.FixedDt)
		return
	}
	now := time.Now()
	t.Dt = now.Sub(t.Time)
	t.Time = now
}
