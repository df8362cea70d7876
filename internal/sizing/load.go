package sizing

import (
	"fmt"
	"math"
	"strings"
)

// ToolError is a structured, non-fatal validation failure returned as a tool
// result so the model can correct its inputs and retry.
type ToolError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SpecialLoad describes an extra moisture source beyond the room envelope.
type SpecialLoad struct {
	Type              string  `json:"type,omitempty"`
	SurfaceAreaM2     float64 `json:"surfaceArea_m2,omitempty"`
	EvaporationRateLh float64 `json:"evaporationRate_Lph,omitempty"`
}

// LoadInput carries the arguments for the latent load heuristic. Required
// fields are pointers so missing values are distinguishable from zero.
type LoadInput struct {
	Length     *float64 `json:"length"`
	Width      *float64 `json:"width"`
	Height     *float64 `json:"height"`
	CurrentRH  *float64 `json:"currentRH"`
	TargetRH   *float64 `json:"targetRH"`
	IndoorTemp *float64 `json:"indoorTemp"`

	ACH          *float64      `json:"ach,omitempty"`
	PeopleCount  int           `json:"peopleCount,omitempty"`
	UsageHours   *float64      `json:"usageHours,omitempty"`
	PoolAreaM2   float64       `json:"pool_area_m2,omitempty"`
	WaterTempC   *float64      `json:"waterTempC,omitempty"`
	SpecialLoads []SpecialLoad `json:"specialLoads,omitempty"`
}

// LoadResult is the successful output of CalculateLoad.
type LoadResult struct {
	RoomAreaM2       float64 `json:"room_area_m2"`
	VolumeM3         float64 `json:"volume"`
	LatentLoadL24h   float64 `json:"latentLoad_L24h"`
	CalculationNotes string  `json:"calculationNotes"`
}

// CalculateLoad computes the heuristic daily latent moisture load in L/24h
// from room dimensions, humidity targets, occupancy, and pool evaporation.
// Validation failures return a *ToolError rather than a Go error: the caller
// feeds them back to the model as a tool result.
func CalculateLoad(in LoadInput) (*LoadResult, *ToolError) {
	if in.Length == nil || in.Width == nil || in.Height == nil ||
		in.CurrentRH == nil || in.TargetRH == nil || in.IndoorTemp == nil {
		return nil, &ToolError{
			Error:   "VALIDATION_ERROR",
			Message: "Missing or invalid required fields (length, width, height, currentRH, targetRH, indoorTemp)",
		}
	}

	length, width, height := *in.Length, *in.Width, *in.Height
	currentRH, targetRH, indoorTemp := *in.CurrentRH, *in.TargetRH, *in.IndoorTemp

	if !(length > 0 && width > 0 && height > 0) {
		return nil, &ToolError{Error: "RANGE_ERROR", Message: "Room dimensions must be positive"}
	}
	if !(currentRH > 0 && currentRH <= 100 && targetRH > 0 && targetRH < currentRH) {
		return nil, &ToolError{Error: "RANGE_ERROR", Message: "Invalid RH values"}
	}
	if !(indoorTemp > 0 && indoorTemp <= 50) {
		return nil, &ToolError{Error: "RANGE_ERROR", Message: "Invalid indoorTemp"}
	}

	ach := 0.5
	if in.ACH != nil {
		ach = *in.ACH
	}
	usageHours := 24.0
	if in.UsageHours != nil {
		usageHours = *in.UsageHours
	}
	waterTempC := 28.0
	if in.WaterTempC != nil {
		waterTempC = *in.WaterTempC
	}

	volume := length * width * height
	roomArea := length * width

	// Base latent load: 0.25 L/day per m³ at a full 100%→0% RH drop.
	deltaRHFrac := (currentRH - targetRH) / 100.0
	baseLoad := volume * deltaRHFrac * 0.25

	// Coarse infiltration allowance per air change.
	infilLoad := volume * ach * 0.02

	// ~0.12 L/h latent per occupant.
	occupantLoad := float64(in.PeopleCount) * 0.12 * usageHours

	specialTotal := 0.0
	if in.PoolAreaM2 > 0 {
		// 3.33 L/24h per m² at 28°C water, +20% per °C above, no reduction below.
		tempAdjust := 1.0 + math.Max(0, waterTempC-28)*0.20
		specialTotal += in.PoolAreaM2 * 3.33 * tempAdjust
	}
	for _, sl := range in.SpecialLoads {
		switch {
		case sl.EvaporationRateLh > 0:
			specialTotal += sl.EvaporationRateLh * usageHours
		case (sl.Type == "Pool" || sl.Type == "Spa") && sl.SurfaceAreaM2 > 0:
			specialTotal += sl.SurfaceAreaM2 * 0.2 * deltaRHFrac * usageHours
		}
	}

	latentLoad := round1(baseLoad + infilLoad + occupantLoad + specialTotal)

	notes := []string{
		fmt.Sprintf("Volume=%.1f m³", volume),
		fmt.Sprintf("ΔRH=%.0f%%", deltaRHFrac*100),
		fmt.Sprintf("ACH=%g", ach),
		fmt.Sprintf("People=%d", in.PeopleCount),
	}
	if specialTotal > 0 {
		notes = append(notes, fmt.Sprintf("SpecialLoads=%.1f L/day", specialTotal))
	}

	return &LoadResult{
		RoomAreaM2:       round1(roomArea),
		VolumeM3:         round1(volume),
		LatentLoadL24h:   latentLoad,
		CalculationNotes: strings.Join(notes, "; "),
	}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
