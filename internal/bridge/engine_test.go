package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/config"
	"github.com/KevinKickass/GridDeck/internal/input"
	"github.com/KevinKickass/GridDeck/internal/peer"
	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/render"
	"github.com/KevinKickass/GridDeck/internal/session"
)

var testTiming = config.TimingConfig{
	LivenessTimeout:  2 * time.Second,
	LivenessSweep:    500 * time.Millisecond,
	AnnounceInterval: time.Second,
	ConfigPush:       3 * time.Second,
	RefreshRetry:     1500 * time.Millisecond,
	PressFlash:       200 * time.Millisecond,
	StopFlashPlaying: 4 * time.Second,
	StopFlashIdle:    500 * time.Millisecond,
	LongPress:        600 * time.Millisecond,
}

type fakeDevice struct {
	keys   map[int]uint32
	writes int
	events chan input.Event
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{keys: map[int]uint32{}, events: make(chan input.Event, 16)}
}

func (d *fakeDevice) SetKey(key int, color uint32) error {
	d.keys[key] = color
	d.writes++
	return nil
}

func (d *fakeDevice) Clear() error {
	d.keys = map[int]uint32{}
	return nil
}

func (d *fakeDevice) Close() error               { return nil }
func (d *fakeDevice) Serial() string             { return "TEST-0001" }
func (d *fakeDevice) Events() <-chan input.Event { return d.events }

type fakeLink struct {
	sent    []protocol.Message
	inbound chan protocol.Message
}

func newFakeLink() *fakeLink {
	return &fakeLink{inbound: make(chan protocol.Message, 16)}
}

func (l *fakeLink) Send(msg protocol.Message)        { l.sent = append(l.sent, msg) }
func (l *fakeLink) Inbound() <-chan protocol.Message { return l.inbound }

func (l *fakeLink) ofType(t protocol.MessageType) []protocol.Message {
	var out []protocol.Message
	for _, m := range l.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (l *fakeLink) reset() { l.sent = nil }

func newTestEngine(mode session.ScrollMode) (*Engine, *fakeDevice, *fakeLink) {
	dev := newFakeDevice()
	link := newFakeLink()
	e := NewEngine(
		config.DeviceConfig{Serial: dev.Serial(), DisplayOrder: 0, HOffset: 4},
		config.BridgeConfig{ScrollMode: string(mode), Brightness: 10},
		testTiming, mode, dev, link, zap.NewNop(), nil,
	)
	return e, dev, link
}

func clipInfo(col, row int, state protocol.PlayState, color uint32) protocol.Message {
	return protocol.NewClipInfo(0, protocol.ClipInfoData{
		Track: col, Scene: row, Key: "k", Color: color, State: state,
	})
}

func TestFirstContactIdentifiesAdapter(t *testing.T) {
	e, _, link := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now)

	configs := link.ofType(protocol.TypeConfig)
	require.Len(t, configs, 1)
	data := configs[0].Data.(protocol.ConfigData)
	assert.Equal(t, 4, data.HOffset)
	assert.Len(t, link.ofType(protocol.TypeRefresh), 1)

	status := e.Status()
	assert.Equal(t, peer.StateOnline, status.Peer.State)
}

func TestFirstContactFlashesPanelOnce(t *testing.T) {
	e, dev, _ := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now)
	for key := 0; key < 32; key++ {
		assert.Equal(t, uint32(0xFFFFFF), dev.keys[key], "key %d", key)
	}

	// the flash reverts on its own
	e.tickHousekeeping(now.Add(300 * time.Millisecond))
	assert.Equal(t, uint32(0), dev.keys[5])

	// a reconnect keeps the panel quiet
	e.tickLiveness(now.Add(3 * time.Second))
	e.handleMessage(protocol.NewAnnounceAdapter(0), now.Add(4*time.Second))
	assert.NotEqual(t, uint32(0xFFFFFF), dev.keys[5])
}

func TestClipInfoPaintsAndClearsWaiting(t *testing.T) {
	e, dev, _ := newTestEngine(session.ModeNone)
	now := time.Now()
	e.setBanner(render.BannerWaiting)

	e.handleMessage(clipInfo(2, 1, protocol.StatePlaying, 0x00FF00), now)

	assert.Equal(t, render.BannerNone, e.Status().Banner)
	assert.Equal(t, uint32(0x00FF00), dev.keys[input.SlotToKey(2, 1)])
}

func TestDuplicateClipInfoWritesOnce(t *testing.T) {
	e, dev, _ := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(clipInfo(0, 0, protocol.StatePlaying, 0x00FF00), now)
	writes := dev.writes
	e.handleMessage(clipInfo(0, 0, protocol.StatePlaying, 0x00FF00), now)
	assert.Equal(t, writes, dev.writes)
}

func TestTrackStoppedFlashesColumnAndReverts(t *testing.T) {
	e, dev, _ := newTestEngine(session.ModeNone)
	now := time.Now()

	for row := 0; row < session.VisibleRows; row++ {
		e.handleMessage(clipInfo(3, row, protocol.StatePlaying, 0x00FF00), now)
	}
	e.handleMessage(protocol.NewTrackStopped(0, 3, true), now)

	for row := 0; row < session.VisibleRows; row++ {
		assert.Equal(t, uint32(0xFF0000), dev.keys[input.SlotToKey(3, row)], "row %d", row)
	}

	// before the deadline nothing reverts
	e.tickHousekeeping(now.Add(time.Second))
	assert.Equal(t, uint32(0xFF0000), dev.keys[input.SlotToKey(3, 0)])

	e.tickHousekeeping(now.Add(5 * time.Second))
	for row := 0; row < session.VisibleRows; row++ {
		assert.Equal(t, uint32(0x00FF00), dev.keys[input.SlotToKey(3, row)], "row %d", row)
	}
}

func TestMismatchBanner(t *testing.T) {
	e, _, _ := newTestEngine(session.ModeBoth)
	now := time.Now()

	e.handleMessage(protocol.NewStructuralMismatch(0, true), now)
	assert.Equal(t, render.BannerMismatch, e.Status().Banner)

	e.handleMessage(protocol.NewStructuralMismatch(0, false), now)
	assert.Equal(t, render.BannerNone, e.Status().Banner)
}

func TestSilentAdapterGoesOffline(t *testing.T) {
	e, _, _ := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now)
	e.tickLiveness(now.Add(time.Second))
	assert.Equal(t, peer.StateOnline, e.Status().Peer.State)

	e.tickLiveness(now.Add(3 * time.Second))
	assert.Equal(t, peer.StateOffline, e.Status().Peer.State)
	assert.Equal(t, render.BannerOffline, e.Status().Banner)
}

func TestOfflineFreezesDisplayAndClearsCache(t *testing.T) {
	e, dev, _ := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(clipInfo(2, 1, protocol.StatePlaying, 0x00FF00), now)
	require.Equal(t, 1, e.cache.Len())

	e.tickLiveness(now.Add(3 * time.Second))

	// the last known picture stays up, only the badge key changes
	assert.Equal(t, uint32(0x00FF00), dev.keys[input.SlotToKey(2, 1)])
	assert.Equal(t, uint32(0xFF0000), dev.keys[0])

	// the cache is empty so reconvergence repaints every cell
	assert.Equal(t, 0, e.cache.Len())
	e.handleMessage(clipInfo(2, 1, protocol.StatePlaying, 0x00FF00), now.Add(4*time.Second))
	assert.Equal(t, 1, e.cache.Len())
}

func TestReconnectReidentifies(t *testing.T) {
	e, _, link := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now)
	session1 := e.Status().Peer.SessionID
	e.tickLiveness(now.Add(3 * time.Second))
	link.reset()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now.Add(4*time.Second))
	assert.Len(t, link.ofType(protocol.TypeConfig), 1)
	assert.Len(t, link.ofType(protocol.TypeRefresh), 1)
	assert.Equal(t, session1, e.Status().Peer.SessionID)
}

func TestKeyPressSendsTriggerWithFlash(t *testing.T) {
	e, dev, link := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(clipInfo(1, 0, protocol.StateIdle, 0x102030), now)
	link.reset()

	for _, cmd := range e.interp.Handle(input.Event{Key: 1, Pressed: true, At: now}) {
		e.handleCommand(cmd, now)
	}

	triggers := link.ofType(protocol.TypeTriggerClip)
	require.Len(t, triggers, 1)
	data := triggers[0].Data.(protocol.TriggerClipData)
	assert.Equal(t, 1, data.TrackOffset)
	assert.Equal(t, 0, data.SceneOffset)

	// press flash then revert to truth
	assert.Equal(t, uint32(0xFFFFFF), dev.keys[1])
	e.tickHousekeeping(now.Add(300 * time.Millisecond))
	assert.NotEqual(t, uint32(0xFFFFFF), dev.keys[1])
}

func TestScrollKeySendsScroll(t *testing.T) {
	e, _, link := newTestEngine(session.ModeVertical)
	now := time.Now()

	for _, cmd := range e.interp.Handle(input.Event{Key: input.KeyVerticalDown, Pressed: true, At: now}) {
		e.handleCommand(cmd, now)
	}

	scrolls := link.ofType(protocol.TypeScroll)
	require.Len(t, scrolls, 1)
	assert.Equal(t, protocol.DirDown, scrolls[0].Data.(protocol.ScrollData).Direction)
}

func TestBrightnessCycleAndLongPressReset(t *testing.T) {
	e, _, _ := newTestEngine(session.ModeBoth)
	now := time.Now()

	e.interp.Handle(input.Event{Key: input.KeyBurger, Pressed: true, At: now})
	e.interp.Handle(input.Event{Key: input.KeyBrightness, Pressed: true, At: now})
	for _, cmd := range e.interp.Handle(input.Event{Key: input.KeyBrightness, Pressed: false, At: now.Add(100 * time.Millisecond)}) {
		e.handleCommand(cmd, now)
	}
	assert.Equal(t, 0, e.Status().Brightness) // 10 wraps to 0

	// long press resets to the configured default
	e.interp.Handle(input.Event{Key: input.KeyBrightness, Pressed: true, At: now.Add(time.Second)})
	e.tickHousekeeping(now.Add(2 * time.Second))
	assert.Equal(t, 10, e.Status().Brightness)
}

func TestRefreshRetriesBounded(t *testing.T) {
	e, _, link := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now)
	link.reset()

	for i := 1; i <= 10; i++ {
		e.tickHousekeeping(now.Add(time.Duration(i) * 2 * time.Second))
	}
	// first refresh went out on contact, four retries remain
	assert.Len(t, link.ofType(protocol.TypeRefresh), 4)
}

func TestClipInfoStopsRefreshRetries(t *testing.T) {
	e, _, link := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now)
	e.handleMessage(clipInfo(0, 0, protocol.StateIdle, 0x101010), now)
	link.reset()

	e.tickHousekeeping(now.Add(10 * time.Second))
	assert.Empty(t, link.ofType(protocol.TypeRefresh))
}

func TestScrollRerequestsLostUpdateBurst(t *testing.T) {
	e, _, link := newTestEngine(session.ModeVertical)
	now := time.Now()

	e.handleMessage(protocol.NewAnnounceAdapter(0), now)
	e.handleMessage(clipInfo(0, 0, protocol.StateIdle, 0x101010), now)
	link.reset()

	e.handleCommand(input.Command{Type: input.CmdScroll, Direction: protocol.DirDown}, now)

	// inside the retry window nothing is re-requested yet
	e.tickHousekeeping(now.Add(time.Second))
	assert.Empty(t, link.ofType(protocol.TypeRefresh))

	// no clip info arrived, the burst counts as lost
	e.tickHousekeeping(now.Add(1600 * time.Millisecond))
	assert.Len(t, link.ofType(protocol.TypeRefresh), 1)

	// the answer ends the retry cycle
	e.handleMessage(clipInfo(0, 1, protocol.StateIdle, 0x101010), now.Add(1700*time.Millisecond))
	e.tickHousekeeping(now.Add(30 * time.Second))
	assert.Len(t, link.ofType(protocol.TypeRefresh), 1)
}

func TestExternalBrightnessBecomesResetDefault(t *testing.T) {
	e, _, _ := newTestEngine(session.ModeBoth)
	now := time.Now()

	e.applyControl(ctrlMsg{brightness: 3})
	assert.Equal(t, 3, e.Status().Brightness)

	// the sun-key long press resets to the newly configured level
	e.interp.Handle(input.Event{Key: input.KeyBurger, Pressed: true, At: now})
	e.interp.Handle(input.Event{Key: input.KeyBrightness, Pressed: true, At: now})
	for _, cmd := range e.interp.Handle(input.Event{Key: input.KeyBrightness, Pressed: false, At: now.Add(100 * time.Millisecond)}) {
		e.handleCommand(cmd, now)
	}
	assert.Equal(t, 4, e.Status().Brightness) // cycled up from 3

	e.interp.Handle(input.Event{Key: input.KeyBrightness, Pressed: true, At: now.Add(time.Second)})
	e.tickHousekeeping(now.Add(2 * time.Second))
	assert.Equal(t, 3, e.Status().Brightness)
}

func TestLinkLossBlanksPanel(t *testing.T) {
	e, dev, link := newTestEngine(session.ModeNone)
	close(link.inbound)

	err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrLinkClosed)
	assert.Empty(t, dev.keys)
}

func TestDocumentClosingShowsWaiting(t *testing.T) {
	e, _, _ := newTestEngine(session.ModeNone)
	now := time.Now()

	e.handleMessage(clipInfo(0, 0, protocol.StatePlaying, 0x00FF00), now)
	e.handleMessage(protocol.NewDocumentClosing(0), now)
	assert.Equal(t, render.BannerWaiting, e.Status().Banner)
}

func TestMessagesForOtherOrdersIgnored(t *testing.T) {
	e, _, link := newTestEngine(session.ModeNone)

	e.handleMessage(protocol.NewAnnounceAdapter(2), time.Now())
	assert.Empty(t, link.sent)
	assert.Equal(t, peer.StateUnknown, e.Status().Peer.State)
}
