// Command lockbox runs the lock session controller: it drives the lock
// channels from the front panel and the HTTP command surface and reports
// state over MQTT.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
