package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the settings that matter at startup
func PrintBanner(config *Config, logger arbor.ILogger) {
	url := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetWidth(60)

	b.PrintTopLine()
	b.PrintCenteredText("TokenScope")
	b.PrintCenteredText("Browser credential and endpoint capture")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", GetVersion(), 12)
	b.PrintKeyValue("Environment", config.Environment, 12)
	b.PrintKeyValue("URL", url, 12)
	b.PrintKeyValue("Storage", config.Storage.Badger.Path, 12)
	b.PrintBottomLine()

	logger.Info().
		Str("version", GetVersion()).
		Str("environment", config.Environment).
		Str("url", url).
		Str("storage", config.Storage.Badger.Path).
		Bool("browser", config.Browser.Enabled).
		Bool("headless", config.Browser.Headless).
		Bool("capture", config.Capture.Enabled).
		Msg("TokenScope starting")
}
