// Package config loads the run configuration and the model manifest.
//
// A run config can be written as YAML (.yaml/.yml), JSON with comments
// (.json/.jsonc, comments stripped with github.com/tidwall/jsonc) or TOML
// (.toml, github.com/BurntSushi/toml). Every field is optional: Load starts
// from Default and overlays whatever the file sets, so an empty file
// reproduces the stock historical-plus-exceedance run.
//
// The model manifest is always YAML and declares the prognostic variables
// of the external model together with their core dimensions.
package config
