// Package config loads the language module configuration from config.toml in
// the module base directory.
//
//	level = "debug"
//	enable_debugging = true
//	subscribe_feature = true
//	memory_limit = "64MiB"
//	compiler = "interpreter"
//	safe_mode = false
//	base_class = "Wand.Plugin"
//	options = ["close-on-context-done"]
//
// Every key is optional. Unknown keys are rejected so that typos do not pass
// silently.
package config
