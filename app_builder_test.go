package trailfx

import "testing"

type MockModule struct {
	installed bool
}

func (m *MockModule) Install(app *App, commands *Commands) {
	m.installed = true
}

type spawningModule struct {
	eid EntityId
}

func (m *spawningModule) Install(app *App, cmd *Commands) {
	m.eid = cmd.AddEntity(NameComponent{Name: "built"})
}

func TestAppBuilder_Stateless(t *testing.T) {
	app := NewAppBuilder().Build()

	if app.stateful {
		t.Errorf("Expected stateful to be false, got %v", app.stateful)
	}
	if app.initialState != 0 || app.finalState != 0 {
		t.Errorf("Expected states to be 0, got %v..%v", app.initialState, app.finalState)
	}
	if len(app.stages) != 5 {
		t.Errorf("Expected the 5 default stages, got %v", app.stages)
	}
}

func TestAppBuilder_UseStates(t *testing.T) {
	app := NewAppBuilder().UseStates(1, 10).Build()

	if !app.stateful {
		t.Errorf("Expected stateful to be true, got %v", app.stateful)
	}
	if app.initialState != 1 {
		t.Errorf("Expected initialState to be 1, got %v", app.initialState)
	}
	if app.finalState != 10 {
		t.Errorf("Expected finalState to be 10, got %v", app.finalState)
	}
}

func TestAppBuilder_Build_WithMultipleModules(t *testing.T) {
	module1 := &MockModule{}
	module2 := &MockModule{}

	builder := NewAppBuilder()
	builder.UseModule(module1, module2)
	builder.Build()

	if len(builder.modules) != 2 {
		t.Errorf("Expected 2 modules, got %v", len(builder.modules))
	}
	if !module1.installed || !module2.installed {
		t.Errorf("Expected Install to be called on every module")
	}
}

func TestAppBuilder_Build_FlushesEntities(t *testing.T) {
	m := &spawningModule{}
	app := NewAppBuilder().UseModule(m).Build()

	if !app.Commands().HasEntity(m.eid) {
		t.Errorf("Expected entity %v queued during Install to exist after Build", m.eid)
	}
}
