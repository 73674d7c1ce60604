package trailfx

import (
	"fmt"
	"reflect"
	"runtime"
)

type systemFn any

// Module installs resources and systems into an App.
type Module interface {
	Install(app *App, cmd *Commands)
}

type App struct {
	stateful           bool
	stateTransitioning bool
	initialState       State
	finalState         State
	nextState          State
	state              State
	started            bool
	stopped            bool

	stages    []Stage
	systems   []systemScheduleBuilder
	resources map[reflect.Type]any
	ecs       *Ecs

	// Command buffering
	pendingAdditions    []pendingAdd
	pendingRemovals     []EntityId
	pendingCompAdds     []pendingComponents
	pendingCompRemovals []pendingComponents
}

type pendingAdd struct {
	eid        EntityId
	components []any
}

type pendingComponents struct {
	eid        EntityId
	components []any
}

func newApp() *App {
	ecs := MakeEcs()
	return &App{
		stages:    defaultStages(),
		resources: make(map[reflect.Type]any),
		ecs:       &ecs,
	}
}

func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// Run steps the app until it reaches its final state or Stop is called.
func (app *App) Run() {
	app.start()
	for !app.stopped {
		if app.Step() {
			return
		}
	}
}

// RunFrames steps the app at most n times and reports whether it finished.
func (app *App) RunFrames(n int) bool {
	app.start()
	for i := 0; i < n && !app.stopped; i++ {
		if app.Step() {
			return true
		}
	}
	return app.stopped
}

// Stop ends Run after the current frame.
func (app *App) Stop() { app.stopped = true }

func (app *App) start() {
	if app.started {
		return
	}
	app.started = true
	if app.stateful {
		app.Logger().Debugf("entering initial state %d", app.initialState)
		app.state = app.initialState
		app.callSystems(app.state, enter)
	}
}

// Step runs every stage once and applies a pending state change. It returns
// true once the final state has been exited.
func (app *App) Step() bool {
	app.callSystems(app.state, execute)

	if !app.stateful {
		return false
	}
	if app.stateTransitioning {
		app.stateTransitioning = false
		app.executeChangeState(app.nextState)
	}
	if app.state == app.finalState {
		app.callSystems(app.state, exit)
		app.stopped = true
		return true
	}
	return false
}

func (app *App) callSystems(state State, phase statePhase) {
	for _, stage := range app.stages {
		for _, sys := range app.systems {
			if !sys.stateProvided || sys.runAlways {
				if sys.runsIn(stage, state, phase, app.stateful) {
					app.callSystem(sys.system)
				}
			}
		}
		for _, sys := range app.systems {
			if sys.stateProvided && !sys.runAlways && sys.runsIn(stage, state, phase, app.stateful) {
				app.callSystem(sys.system)
			}
		}
		app.FlushCommands()
	}
}

func (app *App) changeState(newState State) {
	app.nextState = newState
	app.stateTransitioning = true
}

func (app *App) executeChangeState(newState State) {
	app.callSystems(app.state, exit)
	app.state = newState
	app.callSystems(app.state, enter)
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("resource %s must be a pointer", resourceType))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}
		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// Resource returns the resource of type T registered with AddResources.
func Resource[T any](app *App) (*T, bool) {
	r, ok := app.resources[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	return r.(*T), true
}

var typeOfCommands = reflect.TypeOf(Commands{})

func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())
	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		if argType.Kind() != reflect.Pointer {
			app.unresolved(systemValue, systemType, argType)
		}
		underlyingType := argType.Elem()

		if underlyingType == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, ok := app.resources[underlyingType]; ok {
			args[i] = reflect.ValueOf(resource)
		} else {
			app.unresolved(systemValue, systemType, argType)
		}
	}
	systemValue.Call(args)
}

func (app *App) unresolved(systemValue reflect.Value, systemType, argType reflect.Type) {
	msg := fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
		runtime.FuncForPC(systemValue.Pointer()).Name(),
		systemType,
		argType,
	)
	app.Logger().Errorf("%s", msg)
	panic(msg)
}

// FlushCommands applies queued entity changes. Removals go first so nothing
// is added to a dead entity.
func (app *App) FlushCommands() {
	if len(app.pendingAdditions) == 0 && len(app.pendingRemovals) == 0 &&
		len(app.pendingCompAdds) == 0 && len(app.pendingCompRemovals) == 0 {
		return
	}

	for _, eid := range app.pendingRemovals {
		app.ecs.removeEntity(eid)
	}
	app.pendingRemovals = app.pendingRemovals[:0]

	for _, add := range app.pendingAdditions {
		app.ecs.insertEntity(add.eid, add.components...)
	}
	app.pendingAdditions = app.pendingAdditions[:0]

	for _, add := range app.pendingCompAdds {
		app.ecs.addComponents(add.eid, add.components...)
	}
	app.pendingCompAdds = app.pendingCompAdds[:0]

	for _, rm := range app.pendingCompRemovals {
		app.ecs.removeComponents(rm.eid, rm.components...)
	}
	app.pendingCompRemovals = app.pendingCompRemovals[:0]
}
