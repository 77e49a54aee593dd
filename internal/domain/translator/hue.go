package translator

import (
	"math"

	"github.com/Knetic/govaluate"
	"github.com/amimof/huego"

	"esphome-humidifier-bridge/internal/domain/model"
)

const (
	hueMinBri = 1
	hueMaxBri = 254
)

// HueCommand is what a Hue state PUT asks of the humidifier.
type HueCommand struct {
	On       *bool
	Humidity *int
}

// HueStrategy presents a humidifier as a dimmable light: power maps to on,
// target humidity within [min, max] maps to brightness.
type HueStrategy struct{}

func (s *HueStrategy) ToHue(h *model.HumidifierState, exp *model.HueExposure) *huego.State {
	state := &huego.State{
		On:        h.IsOn,
		Reachable: h.Available,
		Bri:       hueMinBri,
	}
	if h.TargetHumidity == nil {
		return state
	}
	x := float64(*h.TargetHumidity)

	var bri float64
	if exp != nil && exp.ToHueFormula != "" {
		bri = s.evaluate(exp.ToHueFormula, x)
	} else if h.MaxHumidity <= h.MinHumidity {
		bri = hueMaxBri
	} else {
		bri = hueMinBri + (x-float64(h.MinHumidity))*(hueMaxBri-hueMinBri)/float64(h.MaxHumidity-h.MinHumidity)
	}
	state.Bri = uint8(clamp(math.Round(bri), hueMinBri, hueMaxBri))
	return state
}

// ToHA reads the "on" and "bri" keys of a Hue state update.
func (s *HueStrategy) ToHA(update map[string]interface{}, h *model.HumidifierState, exp *model.HueExposure) HueCommand {
	var cmd HueCommand
	if on, ok := update["on"].(bool); ok {
		cmd.On = &on
	}
	bri, ok := model.SafeFloat(update["bri"])
	if !ok {
		return cmd
	}

	var humidity float64
	if exp != nil && exp.ToHAFormula != "" {
		humidity = s.evaluate(exp.ToHAFormula, bri)
	} else {
		bri = clamp(bri, hueMinBri, hueMaxBri)
		humidity = float64(h.MinHumidity) + (bri-hueMinBri)*float64(h.MaxHumidity-h.MinHumidity)/(hueMaxBri-hueMinBri)
	}
	v := int(clamp(math.Round(humidity), float64(h.MinHumidity), float64(h.MaxHumidity)))
	cmd.Humidity = &v
	return cmd
}

func (s *HueStrategy) GetMetadata() model.HueMetadata {
	return model.HueMetadata{
		Type:             "Dimmable light",
		ModelID:          "LWB004",
		ManufacturerName: "Philips",
	}
}

// evaluate handles simple formulas like "x * 2.54" or "(x - 30) * 5"
func (s *HueStrategy) evaluate(formula string, x float64) float64 {
	expression, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return x
	}
	parameters := make(map[string]interface{}, 1)
	parameters["x"] = x

	result, err := expression.Evaluate(parameters)
	if err != nil {
		return x
	}

	if val, ok := result.(float64); ok {
		return val
	}
	return x
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
