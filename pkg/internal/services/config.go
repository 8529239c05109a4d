package services

import "github.com/spf13/viper"

// Tunables are read inline where they are used; host applications may
// override any of them through their own viper setup before constructing
// the engine.
func init() {
	viper.SetDefault("messaging.history_page_cap", 100)
	viper.SetDefault("polls.option_soft_cap", 10)
	viper.SetDefault("calling.participant_page_cap", 100)
	viper.SetDefault("events.stream_buffer", 64)
}
