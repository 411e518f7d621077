package wire

import "fmt"

// Subject layout per robot name. Priority commands (stop) travel on a
// dedicated subject so they bypass the ordered command stream.
const (
	subjectCommand  = "robot.%s.cmd"
	subjectPriority = "robot.%s.cmd.priority"
	subjectState    = "robot.%s.telemetry.state"
	subjectFull     = "robot.%s.telemetry.full"
	subjectReject   = "robot.%s.reject"
)

// CommandSubject returns the ordered command subject for a robot.
func CommandSubject(name string) string { return fmt.Sprintf(subjectCommand, name) }

// PrioritySubject returns the pre-empting command subject for a robot.
func PrioritySubject(name string) string { return fmt.Sprintf(subjectPriority, name) }

// StateSubject returns the fast state-only telemetry subject.
func StateSubject(name string) string { return fmt.Sprintf(subjectState, name) }

// FullSubject returns the telemetry subject carrying sensor payloads.
func FullSubject(name string) string { return fmt.Sprintf(subjectFull, name) }

// RejectSubject returns the subject carrying command rejections.
func RejectSubject(name string) string { return fmt.Sprintf(subjectReject, name) }
