// Package anpr holds the data model shared by the recognition pipeline, the
// plate state tracker and the parking allocator.
//
// All box geometry is in pixel units of the frame the detection was made on,
// anchored at the box centre (the convention used by the detector service).
package anpr

import (
	"image"
	"time"
)

// ClassLabel identifies what a detection box contains.
type ClassLabel string

const (
	ClassPlate    ClassLabel = "plate"
	ClassFree     ClassLabel = "free"
	ClassOccupied ClassLabel = "occupied"
)

// DetectionBox is a single detector output in center format.
type DetectionBox struct {
	CenterX    float64    `json:"x"`
	CenterY    float64    `json:"y"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Confidence float64    `json:"confidence"` // 0..1
	Class      ClassLabel `json:"class"`
}

// Usable reports whether the box has positive dimensions.
func (b DetectionBox) Usable() bool {
	return b.Width > 0 && b.Height > 0
}

// Corners converts the box to corner format. Coordinates are truncated
// toward zero; the result is not clamped to any frame.
func (b DetectionBox) Corners() image.Rectangle {
	x1 := int(b.CenterX - b.Width/2)
	y1 := int(b.CenterY - b.Height/2)
	x2 := int(b.CenterX + b.Width/2)
	y2 := int(b.CenterY + b.Height/2)
	return image.Rect(x1, y1, x2, y2)
}

// PlateCandidate is one ranked OCR reading.
type PlateCandidate struct {
	RawText     string `json:"raw_text"`
	CleanedText string `json:"cleaned_text"`
	Score       int    `json:"score"`
	Count       int    `json:"count"`
}

// Box is a corner-format rectangle used for persisted spot coordinates.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// BoxFromRect converts an image.Rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Rect converts the box back to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// OpenRecord represents a vehicle currently believed to be present.
// PlateText is unique among open records.
type OpenRecord struct {
	PlateText      string    `json:"text"`
	EntryTime      time.Time `json:"timestamp"`
	Snapshot       string    `json:"image,omitempty"`
	AssignedSpotID string    `json:"parking_spot,omitempty"`
	SpotBox        *Box      `json:"spot_coordinates,omitempty"`
}

// SpotStatus is the occupancy state of a parking spot.
type SpotStatus string

const (
	SpotFree     SpotStatus = "free"
	SpotOccupied SpotStatus = "occupied"
)

// ParkingSpot is a spot known to the allocator. AssignedPlate is set iff
// Status is SpotOccupied.
type ParkingSpot struct {
	ID            string     `json:"spot_id"`
	Status        SpotStatus `json:"status"`
	AssignedPlate string     `json:"assigned_plate,omitempty"`
	Box           Box        `json:"box"`
	UpdatedAt     time.Time  `json:"last_update"`
}

// EventStatus distinguishes entry from exit events.
type EventStatus string

const (
	EventEntry EventStatus = "entry"
	EventExit  EventStatus = "exit"
)

// PlateEvent is emitted for every accepted entry/exit transition.
type PlateEvent struct {
	Plate     string        `json:"plate"`
	Status    EventStatus   `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"` // exit only
	SpotID    string        `json:"spot_id,omitempty"`
}

// Allocation records a spot handed to a plate.
type Allocation struct {
	SpotID     string    `json:"spot_id"`
	Plate      string    `json:"plate"`
	Box        Box       `json:"box"`
	AssignedAt time.Time `json:"assigned_at"`
}

// State is a point-in-time view of open records and known spots.
type State struct {
	OpenRecords []OpenRecord  `json:"open_records"`
	Spots       []ParkingSpot `json:"spots"`
}
