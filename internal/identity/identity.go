// Package identity derives the synthetic student identities used by a simulation run.
package identity

import "fmt"

// StudentIDBase is added to the iteration index to form the student number.
const StudentIDBase = 1000

// Student is one simulated attendee and the device it checks in from.
type Student struct {
	ID       string
	DeviceID string
}

// ForIndex returns the student for iteration i. The result depends only on i.
func ForIndex(i int) Student {
	return Student{
		ID:       fmt.Sprintf("STU_%d", StudentIDBase+i),
		DeviceID: fmt.Sprintf("DEV_UUID_%d", i),
	}
}
