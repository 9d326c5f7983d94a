// Package scripting runs a JavaScript policy as a controller. The script must
// define nextDirection(sensors, tick) and return "UP", "RIGHT", "DOWN", "LEFT"
// (or a single letter), or nothing to keep the current direction.
package scripting

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"

	"snake-sim/game/sensors"
	"snake-sim/game/types"
)

var ErrNoEntryPoint = errors.New("script does not define nextDirection()")

const (
	entryPoint = "nextDirection"

	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 100 * time.Millisecond
)

var headingKeys = [types.NumHeadings]string{
	"up", "upRight", "right", "downRight", "down", "downLeft", "left", "upLeft",
}

type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithCallTimeout bounds every nextDirection call
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) { c.callTimeout = d }
}

// Controller adapts a script to controller.Controller. A goja runtime is not
// goroutine safe, so a Controller must drive a single game at a time.
type Controller struct {
	runtime     *goja.Runtime
	fn          goja.Callable
	callTimeout time.Duration
	logger      *log.Logger
	lastErr     error
}

// New evaluates source and looks up its entry point
func New(source string, opts ...Option) (*Controller, error) {
	c := &Controller{
		runtime:     goja.New(),
		callTimeout: scriptCallTimeout,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.injectGlobals()

	if err := c.withTimeout(scriptInitTimeout, func() error {
		_, err := c.runtime.RunString(source)
		return err
	}); err != nil {
		return nil, fmt.Errorf("script execution error: %w", err)
	}

	fn, ok := goja.AssertFunction(c.runtime.Get(entryPoint))
	if !ok {
		return nil, ErrNoEntryPoint
	}
	c.fn = fn
	return c, nil
}

func (c *Controller) injectGlobals() {
	c.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		c.logger.Info(strings.Join(parts, " "), "source", "script")
		return goja.Undefined()
	})
	console := c.runtime.NewObject()
	console.Set("log", c.runtime.Get("log"))
	c.runtime.Set("console", console)

	c.runtime.Set("require", goja.Undefined())
	c.runtime.Set("eval", goja.Undefined())
	c.runtime.Set("Function", goja.Undefined())
}

// withTimeout interrupts the runtime if fn runs longer than timeout
func (c *Controller) withTimeout(timeout time.Duration, fn func() error) error {
	timer := time.AfterFunc(timeout, func() {
		c.runtime.Interrupt("script execution timeout")
	})
	defer func() {
		timer.Stop()
		c.runtime.ClearInterrupt()
	}()
	return fn()
}

func point(p types.Pixel) map[string]any {
	return map[string]any{"x": p.X, "y": p.Y}
}

func rays(set sensors.RaySet) map[string]any {
	out := make(map[string]any, len(set))
	for h, ray := range set {
		out[headingKeys[h]] = map[string]any{
			"x":        ray.End.X,
			"y":        ray.End.Y,
			"distance": ray.Distance,
		}
	}
	return out
}

func sensorObject(r *sensors.Readings) map[string]any {
	return map[string]any{
		"head":      point(r.Head),
		"direction": r.Direction.String(),
		"walls":     rays(r.Walls),
		"self":      rays(r.Self),
		"food":      rays(r.Food),
	}
}

// NextDirection calls the script. Errors, timeouts and unknown answers count as
// no preference; the last one is kept in Err.
func (c *Controller) NextDirection(readings *sensors.Readings, tick int) types.Direction {
	if readings == nil {
		return types.None
	}

	var result goja.Value
	err := c.withTimeout(c.callTimeout, func() error {
		var err error
		result, err = c.fn(goja.Undefined(), c.runtime.ToValue(sensorObject(readings)), c.runtime.ToValue(tick))
		return err
	})
	if err != nil {
		c.fail(tick, fmt.Errorf("%s() error: %w", entryPoint, err))
		return types.None
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return types.None
	}
	answer := strings.TrimSpace(result.String())
	if answer == "" {
		return types.None
	}
	dir, err := types.ParseDirection(answer)
	if err != nil {
		c.fail(tick, err)
		return types.None
	}
	return dir
}

func (c *Controller) fail(tick int, err error) {
	c.lastErr = err
	c.logger.Warn("script call failed", "tick", tick, "err", err)
}

// Err returns the last script failure, if any
func (c *Controller) Err() error {
	return c.lastErr
}
