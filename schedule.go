package trailfx

import (
	"fmt"
	"slices"
)

type State int

type Stage struct {
	Name string
}

var (
	Prelude    = Stage{Name: "Prelude"}
	PreUpdate  = Stage{Name: "PreUpdate"}
	Update     = Stage{Name: "Update"}
	PostUpdate = Stage{Name: "PostUpdate"}
	Finale     = Stage{Name: "Finale"}
)

func defaultStages() []Stage {
	return []Stage{Prelude, PreUpdate, Update, PostUpdate, Finale}
}

type statePhase int

const (
	enter statePhase = iota
	execute
	exit
)

type stateScheduleBuilder struct {
	state  State
	phase  statePhase
	always bool
}

func OnEnter(state State) stateScheduleBuilder {
	return stateScheduleBuilder{state: state, phase: enter}
}

func OnExecute(state State) stateScheduleBuilder {
	return stateScheduleBuilder{state: state, phase: execute}
}

func OnExit(state State) stateScheduleBuilder {
	return stateScheduleBuilder{state: state, phase: exit}
}

func Always() stateScheduleBuilder { return stateScheduleBuilder{always: true} }

// systemScheduleBuilder places a system function in a stage and, in
// stateful apps, a state phase. Builders are values; every method returns a
// modified copy.
type systemScheduleBuilder struct {
	system        systemFn
	inStage       Stage
	runAlways     bool
	inState       State
	inStatePhase  statePhase
	stateProvided bool
}

// System wraps fn for scheduling. fn's parameters are pointers to
// resources or *Commands. The default stage is Update.
func System(fn systemFn) systemScheduleBuilder {
	return systemScheduleBuilder{system: fn, inStage: Update}
}

func (sched systemScheduleBuilder) InStage(s Stage) systemScheduleBuilder {
	sched.inStage = s
	return sched
}

func (sched systemScheduleBuilder) InState(s stateScheduleBuilder) systemScheduleBuilder {
	sched.runAlways = s.always
	sched.inState = s.state
	sched.inStatePhase = s.phase
	sched.stateProvided = true
	return sched
}

func (sched systemScheduleBuilder) RunAlways() systemScheduleBuilder {
	sched.runAlways = true
	return sched
}

type stagePosition int

const (
	stageBefore stagePosition = iota
	stageAfter
)

type stagePositionBuilder struct {
	position stagePosition
	target   Stage
}

func BeforeStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageBefore, target: s}
}

func AfterStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageAfter, target: s}
}

func (app *App) stageIndex(name string) int {
	return slices.IndexFunc(app.stages, func(s Stage) bool { return s.Name == name })
}

// UseStage inserts a custom stage relative to an existing one.
func (app *App) UseStage(stage Stage, where stagePositionBuilder) *App {
	idx := app.stageIndex(where.target.Name)
	if idx == -1 {
		panic(fmt.Sprintf("Stage %v not found", where.target.Name))
	}
	if where.position == stageAfter {
		idx++
	}
	app.stages = slices.Insert(app.stages, idx, stage)
	return app
}

// UseSystem schedules a system. Systems run in insertion order within a stage.
func (app *App) UseSystem(system systemScheduleBuilder) *App {
	if app.stageIndex(system.inStage.Name) == -1 {
		panic(fmt.Sprintf("Stage %v doesn't exist", system.inStage.Name))
	}
	if system.stateProvided && !system.runAlways {
		if !app.stateful {
			panic("Trying to use a stateful system in a stateless app.")
		}
		if system.inState < app.initialState || system.inState > app.finalState {
			panic(fmt.Sprintf("State %v doesn't exist", system.inState))
		}
	}
	app.systems = append(app.systems, system)
	return app
}

func (sched systemScheduleBuilder) runsIn(stage Stage, state State, phase statePhase, stateful bool) bool {
	if sched.inStage.Name != stage.Name {
		return false
	}
	if sched.runAlways || !sched.stateProvided {
		return phase == execute
	}
	return stateful && sched.inState == state && sched.inStatePhase == phase
}
