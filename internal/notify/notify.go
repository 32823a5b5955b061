// Package notify posts desktop notifications for session lifecycle
// events.
package notify

import (
	"fmt"
	"log"
	"os/exec"
)

type Notifier interface {
	SessionChanged(recording bool)
	Error(msg string)
}

type Desktop struct{}

func (Desktop) SessionChanged(recording bool) {
	state := "Stopped"
	if recording {
		state = "Started"
	}
	cmd := exec.Command("notify-send", "-a", "Verbatim",
		fmt.Sprintf("Verbatim: %s Capturing", state))
	if err := cmd.Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

func (Desktop) Error(msg string) {
	cmd := exec.Command("notify-send", "-a", "Verbatim", "-u", "critical", msg)
	if err := cmd.Run(); err != nil {
		log.Printf("Failed to send error notification: %v", err)
	}
}

// Nop is a Notifier that does absolutely nothing. Useful in unit tests
// or headless builds.
type Nop struct{}

func (Nop) SessionChanged(recording bool) {}
func (Nop) Error(msg string)              {}
