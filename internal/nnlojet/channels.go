package nnlojet

import (
	"errors"
	"fmt"
	"strings"
)

// AllLevels are the perturbative levels in order.
var AllLevels = []string{"LO", "R", "V", "RR", "RV", "VV"}

// ErrUnsupportedOrder is returned for perturbative orders beyond NNLO.
var ErrUnsupportedOrder = errors.New("N3LO is not supported")

// Level is a perturbative level and the pinecard channels contributing to it.
type Level struct {
	Name     string
	Channels []string
}

// LevelsForPTO returns the levels needed at perturbative order pto.
func LevelsForPTO(pto int) ([]string, error) {
	switch {
	case pto < 0:
		return nil, fmt.Errorf("negative perturbative order %d", pto)
	case pto > 2:
		return nil, fmt.Errorf("PTO %d: %w", pto, ErrUnsupportedOrder)
	}
	levels := []string{"LO"}
	if pto > 0 {
		levels = append(levels, "R", "V")
	}
	if pto > 1 {
		levels = append(levels, "RR", "RV", "VV")
	}
	return levels, nil
}

func levelPrefixes(level string) []string {
	if level == "RR" {
		return []string{"RR_", "RRa_", "RRb_"}
	}
	return []string{level + "_"}
}

// ActiveChannels groups the pinecard channels by the requested levels.
// NLO expands to R and V, NNLO to RR, RV and VV; nil means AllLevels.
// A channel belongs to a level when it is named after it or starts with
// its prefix (RR also accepts RRa_ and RRb_). Levels appear in the order
// their first channel is found in the pinecard.
func (p *Pinecard) ActiveChannels(levels []string) []Level {
	if levels == nil {
		levels = AllLevels
	}
	expanded := append([]string(nil), levels...)
	for _, l := range levels {
		switch l {
		case "NLO":
			expanded = append(expanded, "R", "V")
		case "NNLO":
			expanded = append(expanded, "RR", "RV", "VV")
		}
	}

	var out []Level
	index := map[string]int{}
	for _, channel := range p.Channels.Keys() {
		for _, level := range expanded {
			if !matchesLevel(channel, level) {
				continue
			}
			i, ok := index[level]
			if !ok {
				i = len(out)
				index[level] = i
				out = append(out, Level{Name: level})
			}
			out[i].Channels = append(out[i].Channels, channel)
		}
	}
	return out
}

func matchesLevel(channel, level string) bool {
	if channel == level {
		return true
	}
	for _, prefix := range levelPrefixes(level) {
		if strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// region returns the CHANNELS region argument for a channel name: a or b
// when its level part ends in that letter.
func region(channel string) string {
	level, _, _ := strings.Cut(channel, "_")
	switch {
	case strings.HasSuffix(level, "a"):
		return "region = a"
	case strings.HasSuffix(level, "b"):
		return "region = b"
	}
	return ""
}
