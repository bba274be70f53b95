package models

// StreamStatus is the overall operational status of a monitored stream.
type StreamStatus string

const (
	StatusOnline  StreamStatus = "online"
	StatusOffline StreamStatus = "offline"
	StatusError   StreamStatus = "error"
	StatusStale   StreamStatus = "stale"
)

// PlaylistType mirrors the HLS #EXT-X-PLAYLIST-TYPE tag; LIVE is the default
// when the tag is absent.
const PlaylistTypeLive = "LIVE"

// Stream is the durable record for one monitored HLS URL. It is created and
// deleted externally (see the administrative surface); the monitor engine
// only ever reads and updates it.
type Stream struct {
	BaseModel

	Name string `gorm:"size:255;not null" json:"name"`
	URL  string `gorm:"size:2048;not null;uniqueIndex" json:"url"`

	Status StreamStatus `gorm:"size:20;not null;default:'offline';index" json:"status"`

	Health Health `gorm:"embedded;embeddedPrefix:health_" json:"health"`
	Stats  Stats  `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`

	// StreamErrors is the append/age-out ledger; stored as a child table.
	StreamErrors []StreamError `gorm:"foreignKey:StreamID" json:"streamErrors,omitempty"`

	// Thumbnail is a data:image/jpeg;base64,... URL, or empty when none has
	// been captured yet.
	Thumbnail string `gorm:"type:text" json:"thumbnail,omitempty"`

	LastChecked Time `json:"lastChecked"`
}

// Health holds the freshness/sequence/error bookkeeping for a Stream.
type Health struct {
	IsStale             bool  `json:"isStale"`
	LastManifestUpdate  Time  `json:"lastManifestUpdate"`
	TimeSinceLastUpdate int64 `json:"timeSinceLastUpdate"` // milliseconds
	StaleThreshold      int64 `json:"staleThreshold"`      // milliseconds

	MediaSequence         int64 `json:"mediaSequence"`
	PreviousMediaSequence int64 `json:"previousMediaSequence"`

	SequenceJumps  int64 `json:"sequenceJumps"`
	SequenceResets int64 `json:"sequenceResets"`

	DiscontinuitySequence int64 `json:"discontinuitySequence"`
	DiscontinuityCount    int64 `json:"discontinuityCount"`

	SegmentCount   int    `json:"segmentCount"`
	TargetDuration int    `json:"targetDuration"`
	PlaylistType   string `gorm:"size:32" json:"playlistType"`

	TotalErrors       int64 `json:"totalErrors"`
	TimeSinceLastErr  int64 `json:"timeSinceLastError"` // milliseconds, informational only (§9)
	LastErrorTime     Time  `json:"lastErrorTime"`
	HasLastErrorTime  bool  `json:"-"` // distinguishes "never" from the zero Time

	RecentErrors         int `gorm:"-" json:"recentErrors"`
	RecentSequenceJumps  int `gorm:"-" json:"recentSequenceJumps"`
	RecentSequenceResets int `gorm:"-" json:"recentSequenceResets"`
}

// Stats holds the last-known media characterization for a Stream.
type Stats struct {
	Bandwidth  int64  `json:"bandwidth"`
	Resolution string `gorm:"size:32" json:"resolution"`
	FPS        float64 `json:"fps"`

	Video     VideoStats     `gorm:"embedded;embeddedPrefix:video_" json:"video"`
	HasVideo  bool           `json:"-"`
	Audio     AudioStats     `gorm:"embedded;embeddedPrefix:audio_" json:"audio"`
	HasAudio  bool           `json:"-"`
	Container ContainerStats `gorm:"embedded;embeddedPrefix:container_" json:"container"`
}

// VideoStats describes the selected video stream of the most recent probe.
type VideoStats struct {
	Codec      string `gorm:"size:64" json:"codec"`
	Profile    string `gorm:"size:64" json:"profile"`
	Level      string `gorm:"size:16" json:"level"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	PixFmt     string `gorm:"size:32" json:"pixelFormat"`
	ColorSpace string `gorm:"size:32" json:"colorSpace"`
	BitRate    int64  `json:"bitRate"`
}

// AudioStats describes the selected audio stream of the most recent probe,
// enriched by the loudness task.
type AudioStats struct {
	Codec         string   `gorm:"size:64" json:"codec"`
	Channels      int      `json:"channels"`
	SampleRate    int      `json:"sampleRate"`
	BitRate       int64    `json:"bitRate"`
	PeakDb        *float64 `json:"peakDb"`
	AvgDb         *float64 `json:"avgDb"`
	ChannelLayout string   `gorm:"size:32" json:"channelLayout"`
	IsSilent      bool     `json:"isSilent"`
}

// ContainerStats describes the probed container format.
type ContainerStats struct {
	FormatName string  `gorm:"size:64" json:"formatName"`
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
	BitRate    int64   `json:"bitRate"`
}

// StreamError is one entry in a stream's error ledger.
type StreamError struct {
	ID uint `gorm:"primarykey" json:"-"`

	// StreamID links back to the owning Stream.
	StreamID ULID `gorm:"type:varchar(26);index;not null" json:"-"`

	EID       string `gorm:"size:48;uniqueIndex" json:"eid"`
	Date      Time   `gorm:"index" json:"date"`
	ErrorType string `gorm:"size:64" json:"errorType"`
	MediaType string `gorm:"size:16" json:"mediaType"`
	Variant   string `gorm:"size:32" json:"variant"`
	Details   string `gorm:"type:text" json:"details"`
	Code      string `gorm:"size:32" json:"code,omitempty"`
}

// The seven error-type taxonomy values the ledger uses.
const (
	ErrorTypeManifestRetrieval = "Manifest Retrieval"
	ErrorTypeMediaSequence     = "Media Sequence"
	ErrorTypePlaylistSize      = "Playlist Size"
	ErrorTypePlaylistContent   = "Playlist Content"
	ErrorTypeSegmentContinuity = "Segment Continuity"
	ErrorTypeDiscontinuitySeq  = "Discontinuity Sequence"
	ErrorTypeStaleManifest     = "Stale Manifest"
)

// MetricsSample is one append-only scoring snapshot, written once per poll.
// The repository's DeleteExpired removes samples by Timestamp; nothing in
// this repository calls it, so retention is not enforced automatically.
type MetricsSample struct {
	ID uint `gorm:"primarykey"`

	StreamID ULID `gorm:"type:varchar(26);index;not null" json:"streamId"`

	HealthScore  float64      `json:"healthScore"`
	VideoScore   float64      `json:"videoScore"`
	AudioScore   float64      `json:"audioScore"`
	VideoBitrate int64        `json:"videoBitrate"`
	AudioBitrate int64        `json:"audioBitrate"`
	VideoLevel   float64      `json:"videoLevel"`
	AudioLevel   float64      `json:"audioLevel"`
	FPS          float64      `json:"fps"`
	Status       StreamStatus `gorm:"size:20" json:"status"`
	MediaSequence int64       `json:"mediaSequence"`
	SegmentCount  int         `json:"segmentCount"`
	ErrorCount    int64       `json:"errorCount"`

	Timestamp Time `gorm:"index" json:"timestamp"`
}
