package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/notifier"
)

// NotifyCmd sends a message to the tray app. It is used to check the tray
// integration by hand.
type NotifyCmd struct {
	Message string `arg:"" help:"Notification text."`
}

func (cmd *NotifyCmd) Run(ctx *cli.Context) error {
	if err := notifier.New().Notify(context.Background(), cmd.Message); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	fmt.Println("✓ Notification sent")
	return nil
}
