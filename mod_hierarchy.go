package trailfx

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Parent attaches an entity to another one. The child's TransformComponent
// is then derived from the parent's and its LocalTransformComponent.
type Parent struct {
	Entity EntityId
}

// LocalTransformComponent is a transform relative to the Parent.
type LocalTransformComponent struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func (l LocalTransformComponent) transform() TransformComponent {
	return TransformComponent{Position: l.Position, Rotation: l.Rotation, Scale: l.Scale}
}

var (
	parentComponent         = RegisterComponent[Parent]()
	localTransformComponent = RegisterComponent[LocalTransformComponent]()
)

// maxHierarchyDepth bounds the propagation passes per frame.
const maxHierarchyDepth = 8

// HierarchyModule keeps attached entities in step with their parents. It
// runs at the start of PreUpdate, before sources are sampled.
type HierarchyModule struct{}

func (HierarchyModule) Install(app *App, cmd *Commands) {
	cmd.UseSystem(System(transformHierarchySystem).InStage(PreUpdate))
}

// transformHierarchySystem propagates world transforms down the tree, one
// level per pass, until nothing moves. A child whose parent is gone keeps
// its last world transform.
func transformHierarchySystem(cmd *Commands) {
	for pass := 0; pass < maxHierarchyDepth; pass++ {
		changed := false
		MakeQuery3[Parent, LocalTransformComponent, TransformComponent](cmd).Map(func(eid EntityId, parent *Parent, local *LocalTransformComponent, world *TransformComponent) bool {
			if parent.Entity == eid {
				return true
			}
			pw, ok := GetComponent[TransformComponent](cmd, parent.Entity)
			if !ok {
				return true
			}
			next := childTransform(*pw, *local)
			if next != *world {
				*world = next
				changed = true
			}
			return true
		})
		if !changed {
			return
		}
	}
}

// childTransform composes component-wise so mirrored scales keep their sign.
func childTransform(parent TransformComponent, local LocalTransformComponent) TransformComponent {
	l := local.transform()
	ps, ls := parent.scale(), l.scale()
	return TransformComponent{
		Position: parent.ToWorld(l.Position),
		Rotation: parent.rotation().Mul(l.rotation()).Normalize(),
		Scale:    mgl32.Vec3{ps.X() * ls.X(), ps.Y() * ls.Y(), ps.Z() * ls.Z()},
	}
}
