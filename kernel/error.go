package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error so that reporting a failure never needs the allocator and
// callers can compare errors by identity.
type Error struct {
	// The module where the error occurred (e.g. "pmm", "vmm").
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// String returns the error message prefixed by its module name.
func (e *Error) String() string {
	return "[" + e.Module + "] " + e.Message
}
