package protocol

// MessageType identifies a datagram in the bridge vocabulary
type MessageType string

const (
	// AP -> HP
	TypeAnnounceAdapter    MessageType = "announce_adapter"
	TypeConfigRequest      MessageType = "config_request"
	TypeClipInfo           MessageType = "clip_info"
	TypeTrackStopped       MessageType = "track_stopped"
	TypeStructuralMismatch MessageType = "structural_mismatch"
	TypeDocumentClosing    MessageType = "document_closing"

	// HP -> AP
	TypeAnnounceHost MessageType = "announce_host"
	TypeConfig       MessageType = "config"
	TypeTriggerClip  MessageType = "trigger_clip"
	TypeScroll       MessageType = "scroll"
	TypeRefresh      MessageType = "refresh"
)

// PlayState describes what a clip slot is currently doing
type PlayState string

const (
	StatePlaying   PlayState = "playing"
	StateTriggered PlayState = "triggered"
	StateStopped   PlayState = "stopped" // has a clip, track is playing elsewhere
	StateIdle      PlayState = "idle"    // has a clip, track silent
	StateEmpty     PlayState = "empty"   // no clip in this slot
	StateAbsent    PlayState = "absent"  // slot beyond the host's grid
)

// Direction for scroll commands
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
	DirReset Direction = "reset"
)

// ConfigData is the initial configuration push from the bridge
type ConfigData struct {
	HOffset   int  `json:"h_offset"`
	DebugMode bool `json:"debug_mode"`
}

// ClipInfoData is a level update for one window-local cell.
// Track/Scene are window-local slot coordinates; Key is the opaque
// clip identity so scrolled content never aliases a stale cell.
type ClipInfoData struct {
	Track    int       `json:"track"`
	Scene    int       `json:"scene"`
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Color    uint32    `json:"color"` // 0xRRGGBB
	State    PlayState `json:"state"`
	Progress float64   `json:"progress"` // 0..1, meaningful while playing
}

// TrackStoppedData triggers the time-bounded stop flash
type TrackStoppedData struct {
	TrackIndex int  `json:"track_index"` // window-local column
	WasPlaying bool `json:"was_playing"`
}

// StructuralMismatchData reports a window outside the host's grid
type StructuralMismatchData struct {
	Show bool `json:"show"`
}

// TriggerClipData carries window-local coordinates; the adapter
// resolves them against its own offsets
type TriggerClipData struct {
	TrackOffset int `json:"track_offset"`
	SceneOffset int `json:"scene_offset"`
}

// ScrollData is a single-step window navigation command
type ScrollData struct {
	Direction Direction `json:"direction"`
}

// Message is the datagram envelope. Data holds the type-specific
// payload decoded by the codec, nil for bare messages.
type Message struct {
	Type         MessageType `json:"type"`
	DisplayOrder int         `json:"display_order"`
	Data         any         `json:"data,omitempty"`
}

// Helper constructors for the common messages

func NewAnnounceAdapter(displayOrder int) Message {
	return Message{Type: TypeAnnounceAdapter, DisplayOrder: displayOrder}
}

func NewAnnounceHost(displayOrder int) Message {
	return Message{Type: TypeAnnounceHost, DisplayOrder: displayOrder}
}

func NewConfig(displayOrder, hOffset int, debugMode bool) Message {
	return Message{Type: TypeConfig, DisplayOrder: displayOrder, Data: ConfigData{
		HOffset:   hOffset,
		DebugMode: debugMode,
	}}
}

func NewConfigRequest(displayOrder int) Message {
	return Message{Type: TypeConfigRequest, DisplayOrder: displayOrder}
}

func NewClipInfo(displayOrder int, data ClipInfoData) Message {
	return Message{Type: TypeClipInfo, DisplayOrder: displayOrder, Data: data}
}

func NewTrackStopped(displayOrder, trackIndex int, wasPlaying bool) Message {
	return Message{Type: TypeTrackStopped, DisplayOrder: displayOrder, Data: TrackStoppedData{
		TrackIndex: trackIndex,
		WasPlaying: wasPlaying,
	}}
}

func NewStructuralMismatch(displayOrder int, show bool) Message {
	return Message{Type: TypeStructuralMismatch, DisplayOrder: displayOrder, Data: StructuralMismatchData{Show: show}}
}

func NewDocumentClosing(displayOrder int) Message {
	return Message{Type: TypeDocumentClosing, DisplayOrder: displayOrder}
}

func NewTriggerClip(displayOrder, trackOffset, sceneOffset int) Message {
	return Message{Type: TypeTriggerClip, DisplayOrder: displayOrder, Data: TriggerClipData{
		TrackOffset: trackOffset,
		SceneOffset: sceneOffset,
	}}
}

func NewScroll(displayOrder int, dir Direction) Message {
	return Message{Type: TypeScroll, DisplayOrder: displayOrder, Data: ScrollData{Direction: dir}}
}

func NewRefresh(displayOrder int) Message {
	return Message{Type: TypeRefresh, DisplayOrder: displayOrder}
}
