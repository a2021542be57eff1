package gpio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultSysfsRoot is where the Linux sysfs GPIO interface lives.
const DefaultSysfsRoot = "/sys/class/gpio"

// Sysfs drives pins through the Linux sysfs GPIO interface.
//
// Lines are exported with active_low=1, so logical "active" is the low
// electrical level. Pull-ups must be configured by the board (device tree or
// config.txt); sysfs cannot set them.
type Sysfs struct {
	Root     string
	Debounce time.Duration
}

// NewSysfs returns a Sysfs driver rooted at DefaultSysfsRoot.
func NewSysfs() *Sysfs {
	return &Sysfs{Root: DefaultSysfsRoot, Debounce: time.Millisecond}
}

// OpenInput implements Driver.
func (d *Sysfs) OpenInput(pin int) (InputLine, error) {
	dir, err := d.export(pin)
	if err != nil {
		return nil, err
	}
	if err := writeAttr(dir, "direction", "in"); err != nil {
		return nil, err
	}
	if err := writeAttr(dir, "active_low", "1"); err != nil {
		return nil, err
	}
	return &sysfsInput{path: filepath.Join(dir, "value"), debounce: d.Debounce}, nil
}

// OpenOutput implements Driver. The line starts inactive.
func (d *Sysfs) OpenOutput(pin int) (OutputLine, error) {
	dir, err := d.export(pin)
	if err != nil {
		return nil, err
	}
	if err := writeAttr(dir, "active_low", "1"); err != nil {
		return nil, err
	}
	// "high" sets direction and drives the inactive level atomically
	// (electrically high, logically inactive once active_low is set).
	if err := writeAttr(dir, "direction", "high"); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "value"), os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open pin %d value: %w", pin, err)
	}
	return &sysfsOutput{f: f}, nil
}

func (d *Sysfs) export(pin int) (string, error) {
	root := d.Root
	if root == "" {
		root = DefaultSysfsRoot
	}
	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	if err := writeAttr(root, "export", strconv.Itoa(pin)); err != nil {
		return "", fmt.Errorf("export pin %d: %w", pin, err)
	}
	// udev may need a moment to fix permissions on the new directory.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(filepath.Join(dir, "value")); err == nil {
			return dir, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return "", fmt.Errorf("export pin %d: %s did not appear", pin, dir)
}

func writeAttr(dir, name, value string) error {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

type sysfsInput struct {
	path     string
	debounce time.Duration
	stable   bool
}

// Read samples twice, one debounce window apart. A disagreement keeps the
// previous stable level.
func (l *sysfsInput) Read() (bool, error) {
	first, err := readLevel(l.path)
	if err != nil {
		return l.stable, err
	}
	if l.debounce > 0 {
		time.Sleep(l.debounce)
		second, err := readLevel(l.path)
		if err != nil {
			return l.stable, err
		}
		if first != second {
			return l.stable, nil
		}
	}
	l.stable = first
	return first, nil
}

func (l *sysfsInput) Close() error { return nil }

func readLevel(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	switch string(bytes.TrimSpace(raw)) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, errors.New("unexpected gpio value " + strconv.Quote(string(raw)))
	}
}

type sysfsOutput struct {
	f *os.File
}

func (l *sysfsOutput) Write(active bool) error {
	v := "0"
	if active {
		v = "1"
	}
	_, err := l.f.WriteAt([]byte(v), 0)
	return err
}

func (l *sysfsOutput) Close() error { return l.f.Close() }
