package trailfx

// LifetimeComponent removes its entity once TimeLeft runs out. One-shot
// effects use it to clean up after themselves.
type LifetimeComponent struct {
	TimeLeft float32
}

var lifetimeComponent = RegisterComponent[LifetimeComponent]()

type LifecycleModule struct{}

func (LifecycleModule) Install(app *App, cmd *Commands) {
	cmd.UseSystem(System(lifetimeSystem).InStage(PostUpdate).RunAlways())
}

func lifetimeSystem(t *Time, cmd *Commands) {
	dt := t.Seconds()
	if dt <= 0 {
		return
	}
	log := cmd.Logger()
	MakeQuery1[LifetimeComponent](cmd).Map(func(eid EntityId, lt *LifetimeComponent) bool {
		lt.TimeLeft -= dt
		if lt.TimeLeft <= 0 {
			log.Debugf("lifetime: removing entity %d", eid)
			cmd.RemoveEntity(eid)
		}
		return true
	})
}
