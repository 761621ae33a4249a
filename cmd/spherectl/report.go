package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"spherecore/internal/core"
	"spherecore/pkg/domain"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func kg(v float64) string {
	return humanize.SIWithDigits(v, 2, "kg")
}

func pct(v float64) string {
	return humanize.FtoaWithDigits(v, 2) + "%"
}

// writeBodySummary prints one body with a line per sphere.
func writeBodySummary(w io.Writer, b core.CelestialBody) {
	fmt.Fprintf(w, "%s (%s): g=%s m/s² T=%s K r=%s km m=%s\n",
		b.Name, b.ID,
		humanize.FtoaWithDigits(b.Gravity, 3),
		humanize.FtoaWithDigits(b.SurfaceTemperature, 1),
		humanize.CommafWithDigits(b.Radius/1000, 1),
		kg(b.Mass))

	if atm := b.Atmosphere; atm != nil {
		gases := make([]string, 0, len(atm.Gases))
		for _, id := range sortedByShare(atm.Gases) {
			g := atm.Gases[id]
			gases = append(gases, fmt.Sprintf("%s %s", g.Formula, pct(g.Percentage)))
		}
		fmt.Fprintf(w, "  atmosphere: %s at %s bar, %s K, %s (%s)\n",
			kg(atm.TotalAtmosphericMass),
			humanize.FtoaWithDigits(atm.Pressure, 4),
			humanize.FtoaWithDigits(atm.Temperature, 1),
			atm.HabitabilityLabel(),
			strings.Join(gases, ", "))
	} else {
		fmt.Fprintln(w, "  atmosphere: none")
	}

	for _, layer := range domain.GeosphereLayers {
		summary, err := b.Geosphere.LayerSummary(layer)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "  %s\n", summary)
	}
	fmt.Fprintf(w, "  geology: activity %s, regolith %s m\n",
		humanize.FtoaWithDigits(b.Geosphere.GeologicalActivity, 2),
		humanize.FtoaWithDigits(b.Geosphere.RegolithDepth, 2))

	h := b.Hydrosphere
	area := 4 * math.Pi * b.Radius * b.Radius
	fmt.Fprintf(w, "  hydrosphere: %s water, %s ice, coverage %s\n",
		kg(h.WaterMass()), kg(h.Ice()), pct(h.WaterCoverage(area)))

	bio := b.Biosphere
	fmt.Fprintf(w, "  biosphere: %d biomes, biodiversity %s, habitable %s, %d life forms\n",
		len(bio.Biomes),
		humanize.FtoaWithDigits(bio.BiodiversityIndex, 3),
		humanize.FtoaWithDigits(bio.HabitableRatio, 3),
		len(bio.LifeForms))
}

func sortedByShare(gases map[string]domain.Gas) []string {
	ids := sortedKeys(gases)
	sort.SliceStable(ids, func(i, j int) bool {
		return gases[ids[i]].Mass > gases[ids[j]].Mass
	})
	return ids
}

func writeTickReports(w io.Writer, tick int, reports []core.TickReport) {
	for _, r := range reports {
		fmt.Fprintf(w, "tick %d %s: evaporated %s, precipitated %s, activity %s, habitability %s, biodiversity %s\n",
			tick, r.BodyID,
			kg(r.WaterCycle.Evaporated),
			kg(r.WaterCycle.Precipitated),
			humanize.FtoaWithDigits(r.GeologicalActivity, 2),
			humanize.FtoaWithDigits(r.Habitability, 3),
			humanize.FtoaWithDigits(r.BiodiversityIndex, 3))
	}
}
