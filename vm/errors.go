package vm

import "fmt"

// Fault records why the script cannot continue: an invalid opcode, an
// out-of-range jump, a stack underflow, a type mismatch, an uncaught
// THROW, or a resource limit breach. Execute then returns StateFault and
// the Fault is available from FaultException; execution cannot resume.
type Fault struct {
	Op  OpCode
	IP  int
	Msg string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("vm: fault at ip=%d op=%s: %s", f.IP, f.Op, f.Msg)
}

func newFault(op OpCode, ip int, format string, args ...interface{}) *Fault {
	return &Fault{Op: op, IP: ip, Msg: fmt.Sprintf(format, args...)}
}

// errOutOfGasMsg is the Fault message for gas exhaustion; isOutOfGas
// tells it apart from a logic fault, and FaultAsErrkind maps it to
// errkind.OutOfGas (any other Fault maps to errkind.VMFault).
var errOutOfGasMsg = "out of gas"

func isOutOfGas(f *Fault) bool { return f != nil && f.Msg == errOutOfGasMsg }
