package trailfx

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

type captureLogger struct {
	nopLogger
	lines []string
}

func (c *captureLogger) Warnf(format string, args ...any) {
	c.lines = append(c.lines, format)
}

func TestDefaultLogger_Named(t *testing.T) {
	var out bytes.Buffer
	root := NewDefaultLogger("fx", false)
	root.out = log.New(&out, "", 0)

	child := root.Named("ribbon")
	child.Infof("hello %d", 1)
	assert.Equal(t, "[fx.ribbon] INFO: hello 1\n", out.String())

	child.Debugf("hidden")
	assert.Equal(t, "[fx.ribbon] INFO: hello 1\n", out.String())

	root.SetDebug(true)
	assert.True(t, child.DebugEnabled(), "children share the debug switch")
}

func TestNamed(t *testing.T) {
	c := &captureLogger{}
	Named(c, "beam").Warnf("lost target")
	assert.Equal(t, []string{"beam: lost target"}, c.lines)

	nop := NewNopLogger()
	assert.Same(t, nop, Named(nop, "x"))

	_, isDefault := Named(NewDefaultLogger("", false), "x").(*DefaultLogger)
	assert.True(t, isDefault)
}
