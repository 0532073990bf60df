// Package config loads runtime settings for the morpion server.
//
// Settings come from an optional JSON or YAML file. Any field the file leaves
// out keeps its default, and the merged result is validated before use:
//
//	manager, err := config.NewManager("morpion.yaml")
//	if err != nil {
//		return err
//	}
//	settings := manager.Current()
//
// Durations are written as Go duration strings ("10s", "3h") in either
// format. Command-line flags are applied on top by the binary.
package config
