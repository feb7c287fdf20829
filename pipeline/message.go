package pipeline

import "fmt"

const (
	MsgConfigured = "Object detector initialized successfully using acceleration type %s."

	MsgConfigurationFailed = "Object detector failed to initialize using acceleration type %s: %v"

	MsgInterruptedWait = "Stopped waiting for the object detector to initialize. The new preferences will take effect once initialization completes."

	MsgStopped = "The detection pipeline is shutting down; the object detector was not initialized."
)

func configuredMessage(display string) string {
	return fmt.Sprintf(MsgConfigured, display)
}

func configurationFailedMessage(display string, err error) string {
	return fmt.Sprintf(MsgConfigurationFailed, display, err)
}
