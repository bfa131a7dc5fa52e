// Package config loads the thumbnail engine configuration.
//
// Values resolve, lowest precedence first, from built-in defaults, a YAML
// config file (~/.config/thumbnail-engine/config.yaml or --config), THUMBS_*
// environment variables and command-line flags bound to the same viper
// instance.
//
//	v := viper.New()
//	v.BindPFlag("thumbnail_size", cmd.Flags().Lookup("size"))
//	cfg, err := config.Load(v, cfgFile)
//
// Validate clamps the thumbnail size to 20..256 pixels and rejects unknown
// backend, preload mode, decoder and sort values.
package config
