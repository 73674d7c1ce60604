package emitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tanema/gween/ease"
)

var ErrUnknownEase = errors.New("unknown ease function")

// SpawnProvider is the curve evaluator behind spawn rate and lifetime.
// t is emitter-local time in seconds.
type SpawnProvider interface {
	// Rate is particles (or beams) per second.
	Rate(t float32) float32
	// MaxLifetime is in seconds. Zero or less means particles never age.
	MaxLifetime(t float32) float32
	// Bursts is the number of extra particles due in [from, to).
	Bursts(from, to float32) int
}

type Burst struct {
	Time  float32 `yaml:"time"`
	Count int     `yaml:"count"`
}

func countBursts(bursts []Burst, from, to float32) int {
	n := 0
	for _, b := range bursts {
		if b.Time >= from && b.Time < to {
			n += b.Count
		}
	}
	return n
}

// ConstantSpawn spawns at a fixed rate.
type ConstantSpawn struct {
	PerSecond float32
	Lifetime  float32
	Burst     []Burst
}

func (c ConstantSpawn) Rate(float32) float32        { return c.PerSecond }
func (c ConstantSpawn) MaxLifetime(float32) float32 { return c.Lifetime }
func (c ConstantSpawn) Bursts(from, to float32) int { return countBursts(c.Burst, from, to) }

// EasedSpawn ramps the rate from From to To over Duration seconds.
type EasedSpawn struct {
	From, To float32
	Duration float32
	Lifetime float32
	Ease     ease.TweenFunc
	Burst    []Burst
}

func (e EasedSpawn) Rate(t float32) float32 {
	if e.Duration <= 0 || t >= e.Duration {
		return e.To
	}
	if t <= 0 {
		return e.From
	}
	fn := e.Ease
	if fn == nil {
		fn = ease.Linear
	}
	return fn(t, e.From, e.To-e.From, e.Duration)
}

func (e EasedSpawn) MaxLifetime(float32) float32 { return e.Lifetime }
func (e EasedSpawn) Bursts(from, to float32) int { return countBursts(e.Burst, from, to) }

var easeByName = map[string]ease.TweenFunc{
	"linear":    ease.Linear,
	"inquad":    ease.InQuad,
	"outquad":   ease.OutQuad,
	"inoutquad": ease.InOutQuad,
	"insine":    ease.InSine,
	"outsine":   ease.OutSine,
	"inoutsine": ease.InOutSine,
	"incubic":   ease.InCubic,
	"outcubic":  ease.OutCubic,
}

// EaseByName resolves a config ease name. The empty name is linear.
func EaseByName(name string) (ease.TweenFunc, error) {
	key := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	if key == "" {
		return ease.Linear, nil
	}
	fn, ok := easeByName[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEase, name)
	}
	return fn, nil
}

// SpawnConfig is the yaml form of a SpawnProvider. A positive RampDuration
// selects EasedSpawn, ramping from RampFrom to Rate.
type SpawnConfig struct {
	Rate         float32 `yaml:"rate"`
	Lifetime     float32 `yaml:"lifetime"`
	RampFrom     float32 `yaml:"ramp_from"`
	RampDuration float32 `yaml:"ramp_duration"`
	Ease         string  `yaml:"ease"`
	Bursts       []Burst `yaml:"bursts"`
}

func (c SpawnConfig) Provider() (SpawnProvider, error) {
	if c.RampDuration <= 0 {
		return ConstantSpawn{PerSecond: c.Rate, Lifetime: c.Lifetime, Burst: c.Bursts}, nil
	}
	fn, err := EaseByName(c.Ease)
	if err != nil {
		return nil, err
	}
	return EasedSpawn{
		From:     c.RampFrom,
		To:       c.Rate,
		Duration: c.RampDuration,
		Lifetime: c.Lifetime,
		Ease:     fn,
		Burst:    c.Bursts,
	}, nil
}
