// Package config provides tuning profile management for the mechanism workbench.
//
// The config package handles:
//   - Loading profiles from JSON or YAML files
//   - Profile validation
//   - Default profile selection with a built-in fallback
//   - Profile discovery and listing
//
// Profile Format:
//
// A profile is a file named <id>.json, <id>.yaml or <id>.yml in the profile
// directory. Any field left out keeps its built-in value:
//
//	name: stiff
//	engage_angle_deg: 45
//	timings:
//	  settle_ms: 250
//	kinds:
//	  actuator: {extent: 150, mass: 0.07}
//
// A file named default.* replaces the built-in profile as the default.
package config
