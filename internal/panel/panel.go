package panel

import (
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/input"
	"github.com/KevinKickass/GridDeck/internal/session"
)

// Device drives one Launchpad-class button grid over MIDI. Only the top
// four rows of the 8x8 pad field are used, matching the deck layout.
// LED writes use the per-pad RGB SysEx so colors are not snapped to the
// factory palette.
type Device struct {
	serial   string
	outPort  drivers.Out
	send     func(msg gomidi.Message) error
	stopFunc func()
	logger   *zap.Logger

	events chan input.Event
}

// Open finds the MIDI in/out port pair whose name contains serial and
// puts the device into programmer mode.
func Open(serial string, logger *zap.Logger) (*Device, error) {
	inPort, outPort, err := findPorts(serial)
	if err != nil {
		return nil, err
	}

	d := &Device{
		serial:  serial,
		outPort: outPort,
		logger:  logger,
		events:  make(chan input.Event, 64),
	}

	send, err := gomidi.SendTo(outPort)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	d.send = send

	// Programmer mode, full hardware brightness. The renderer scales
	// colors in software instead.
	d.send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}))
	d.send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}))

	stop, err := gomidi.ListenTo(inPort, d.onMessage)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	d.stopFunc = stop

	return d, nil
}

func findPorts(serial string) (drivers.In, drivers.Out, error) {
	want := strings.ToLower(serial)

	var inPort drivers.In
	for _, p := range gomidi.GetInPorts() {
		if strings.Contains(strings.ToLower(p.String()), want) {
			inPort = p
			break
		}
	}
	if inPort == nil {
		return nil, nil, fmt.Errorf("no MIDI input matching %q", serial)
	}

	var outPort drivers.Out
	for _, p := range gomidi.GetOutPorts() {
		if strings.Contains(strings.ToLower(p.String()), want) {
			outPort = p
			break
		}
	}
	if outPort == nil {
		return nil, nil, fmt.Errorf("no MIDI output matching %q", serial)
	}
	return inPort, outPort, nil
}

func (d *Device) onMessage(msg gomidi.Message, timestampms int32) {
	var channel, note, velocity uint8
	if !msg.GetNoteOn(&channel, &note, &velocity) && !msg.GetNoteOff(&channel, &note, &velocity) {
		return
	}
	key := noteToKey(note)
	if key < 0 {
		return
	}
	ev := input.Event{Key: key, Pressed: velocity > 0, At: time.Now()}
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("Key event dropped", zap.String("serial", d.serial), zap.Int("key", key))
	}
}

func (d *Device) Serial() string {
	return d.serial
}

// Events returns the stream of key presses and releases
func (d *Device) Events() <-chan input.Event {
	return d.events
}

// SetKey lights one key with a 0xRRGGBB color
func (d *Device) SetKey(key int, color uint32) error {
	note, ok := keyToNote(key)
	if !ok {
		return fmt.Errorf("key %d out of range", key)
	}
	r := uint8(color >> 16 & 0xFF >> 1)
	g := uint8(color >> 8 & 0xFF >> 1)
	b := uint8(color & 0xFF >> 1)
	// RGB LED lighting SysEx: F0 00 20 29 02 0C 03 03 <led> <r> <g> <b> F7
	return d.send(gomidi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x03, 0x03, note, r, g, b}))
}

// Clear turns every deck key off
func (d *Device) Clear() error {
	for key := 0; key < input.KeyCount; key++ {
		if err := d.SetKey(key, 0); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) Close() error {
	if d.send != nil {
		d.Clear()
	}
	if d.stopFunc != nil {
		d.stopFunc()
	}
	close(d.events)
	return nil
}

// Deck note mapping. The hardware grid is 8x8 with row 1 (notes 11-18)
// at the bottom. The deck occupies the top four rows, deck row 0 is the
// topmost hardware row.

func keyToNote(key int) (uint8, bool) {
	if key < 0 || key >= input.KeyCount {
		return 0, false
	}
	col, row := input.KeyToSlot(key)
	hwRow := 8 - row // rows 8 down to 5
	return uint8(hwRow*10 + col + 1), true
}

func noteToKey(note uint8) int {
	hwRow := int(note / 10)
	col := int(note%10) - 1
	if hwRow < 5 || hwRow > 8 || col < 0 || col >= session.VisibleCols {
		return -1
	}
	return input.SlotToKey(col, 8-hwRow)
}
