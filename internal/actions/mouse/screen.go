package mouse

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Point is a pixel position, origin top-left.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Button is a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Screen is the pointer automation backend. Implementations need not be safe
// for concurrent use: only the [Worker] goroutine calls them.
type Screen interface {
	// Position returns the pointer position.
	Position() (Point, error)

	// Size returns the screen width and height as a Point.
	Size() (Point, error)

	// MoveTo warps the pointer to p.
	MoveTo(p Point) error

	// Click presses button count times at the current position.
	Click(button Button, count int) error
}

// Xdotool drives the X11 pointer through the xdotool command.
type Xdotool struct {
	// Path is the xdotool binary. Defaults to "xdotool" on $PATH.
	Path string
}

var _ Screen = (*Xdotool)(nil)

// NewXdotool returns an Xdotool screen after checking that the binary exists.
func NewXdotool() (*Xdotool, error) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return nil, fmt.Errorf("mouse: %w", err)
	}
	return &Xdotool{Path: path}, nil
}

func (x *Xdotool) run(args ...string) ([]byte, error) {
	bin := x.Path
	if bin == "" {
		bin = "xdotool"
	}
	var stderr bytes.Buffer
	cmd := exec.Command(bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("mouse: xdotool %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Position implements [Screen].
func (x *Xdotool) Position() (Point, error) {
	out, err := x.run("getmouselocation", "--shell")
	if err != nil {
		return Point{}, err
	}
	return parseLocation(out)
}

// Size implements [Screen].
func (x *Xdotool) Size() (Point, error) {
	out, err := x.run("getdisplaygeometry")
	if err != nil {
		return Point{}, err
	}
	f := strings.Fields(string(out))
	if len(f) != 2 {
		return Point{}, fmt.Errorf("mouse: unexpected display geometry %q", out)
	}
	w, errW := strconv.Atoi(f[0])
	h, errH := strconv.Atoi(f[1])
	if err := errors.Join(errW, errH); err != nil {
		return Point{}, fmt.Errorf("mouse: parse display geometry: %w", err)
	}
	return Point{X: w, Y: h}, nil
}

// MoveTo implements [Screen].
func (x *Xdotool) MoveTo(p Point) error {
	_, err := x.run("mousemove", strconv.Itoa(p.X), strconv.Itoa(p.Y))
	return err
}

// Click implements [Screen].
func (x *Xdotool) Click(button Button, count int) error {
	var n string
	switch button {
	case ButtonLeft:
		n = "1"
	case ButtonMiddle:
		n = "2"
	case ButtonRight:
		n = "3"
	default:
		return fmt.Errorf("mouse: unknown button %q", button)
	}
	_, err := x.run("click", "--repeat", strconv.Itoa(max(count, 1)), n)
	return err
}

// parseLocation reads the X= and Y= lines of `getmouselocation --shell`.
func parseLocation(out []byte) (Point, error) {
	var (
		p            Point
		seenX, seenY bool
	)
	for _, line := range strings.Split(string(out), "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "X":
			p.X, seenX = n, true
		case "Y":
			p.Y, seenY = n, true
		}
	}
	if !seenX || !seenY {
		return Point{}, fmt.Errorf("mouse: unexpected mouse location %q", out)
	}
	return p, nil
}
