// Package pipeline builds the per-arm display arrays for one visit.
//
// A build request fans out over the (spectrograph, arm) grid, each
// task sharing the visit's resource handle through the resource cache,
// and the reducer folds the per-task outcomes back into per-spectrograph
// panels with a deterministic arm order.
package pipeline

import "fmt"

// Arm is one spectrograph arm.
type Arm string

// The four arms. Red and medium-resolution red share the same physical
// slot, so a visit normally carries one or the other.
const (
	ArmBlue   Arm = "b"
	ArmRed    Arm = "r"
	ArmNIR    Arm = "n"
	ArmMedRed Arm = "m"
)

// ParseArm validates an arm name.
func ParseArm(s string) (Arm, error) {
	switch Arm(s) {
	case ArmBlue, ArmRed, ArmNIR, ArmMedRed:
		return Arm(s), nil
	default:
		return "", fmt.Errorf("unknown arm %q", s)
	}
}

// Name returns a human-readable arm name for labels.
func (a Arm) Name() string {
	switch a {
	case ArmBlue:
		return "blue"
	case ArmRed:
		return "red"
	case ArmNIR:
		return "near-infrared"
	case ArmMedRed:
		return "medium-resolution red"
	default:
		return string(a)
	}
}

// DisplayOrder returns the fixed presentation order for the arms that
// are present. The usual layouts are b,r,n and b,m,n; when both red
// arms show up (unusual, but not an error) red sorts before
// medium-resolution red.
func DisplayOrder(present map[Arm]bool) []Arm {
	var pref []Arm
	switch {
	case present[ArmRed] && present[ArmMedRed]:
		pref = []Arm{ArmBlue, ArmRed, ArmNIR, ArmMedRed}
	case present[ArmMedRed]:
		pref = []Arm{ArmBlue, ArmMedRed, ArmNIR}
	default:
		pref = []Arm{ArmBlue, ArmRed, ArmNIR}
	}
	order := make([]Arm, 0, len(pref))
	for _, a := range pref {
		if present[a] {
			order = append(order, a)
		}
	}
	return order
}
