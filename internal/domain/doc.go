// Package domain models the rainfall monitoring data used by the alarm engine.
//
// # Data Source
//
// Readings originate from the national weather administration's open-data
// portal, which publishes several products of differing fidelity and latency:
//
//   - AWS station snapshot: per-station 15-minute rainfall for every automatic
//     weather station in the country, refreshed every few minutes. Highest
//     fidelity, but intermittently unavailable.
//   - Ultra-short-term nowcast: grid-cell observations keyed by (nx, ny)
//     coordinates on the administration's 5 km Lambert conformal conic grid.
//     Carries a rolling one-hour precipitation accumulation (RN1) and a
//     precipitation-type code (PTY).
//   - Village forecast: grid-cell hourly precipitation forecast. A second,
//     lower-resolution forecast field on the nowcast product serves as its
//     declared fallback.
//   - Warning bulletins: watch/warning notices issued independently by the
//     regional forecast offices.
//
// # Grid Conventions
//
// The (nx, ny) grid is a Lambert conformal conic projection with standard
// parallels at 30°N and 60°N, origin 38°N 126°E, and a 5 km cell size.
// Multiple stations commonly share one cell; the batcher relies on this to
// collapse many station evaluations into one upstream call per cell.
// See [CellFor].
//
// # Precipitation-Type Codes
//
//	0  none (dry; any residual accumulation is stale and must read as zero)
//	1  rain
//	2  rain/snow mix
//	3  snow
//	4  shower
//
// A PTY of 0 overrides any nonzero accumulation or forecast figure: rain that
// has stopped keeps a stale RN1 value for up to an hour, and alarming on it
// would be a false positive.
//
// # Bulletin Conventions
//
// Each regional forecast office issues its own bulletins; a later bulletin
// from one office supersedes only that office's earlier ones. Resolving the
// national picture therefore takes the latest bulletin per issuing office,
// never the single globally latest one. Preliminary (advisory-preview)
// bulletins are informational and never activate a region.
package domain
