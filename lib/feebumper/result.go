// Package feebumper builds replacement (BIP 125) transactions that pay a
// higher fee than an unconfirmed wallet transaction they conflict with.
//
// The package is pure policy: it never touches the network or a database
// itself. Everything it needs from the wallet, the chain view and the node's
// relay policy is consumed through the WalletBackend interface, and every
// outcome is reported as a Result rather than an error so that RPC and HTTP
// layers can map failures onto their own status codes.
package feebumper

import "fmt"

// Code classifies the outcome of a fee-bump operation.
type Code int

const (
	// CodeOK indicates the operation succeeded.
	CodeOK Code = iota

	// CodeInvalidParameter indicates a caller-correctable request, such
	// as trying to bump a transaction that already has descendants.
	CodeInvalidParameter

	// CodeInvalidAddressOrKey indicates the referenced transaction id or
	// its inputs could not be resolved or signed.
	CodeInvalidAddressOrKey

	// CodeWalletError indicates the bump is infeasible given the current
	// wallet or network state (fee, depth, ownership, dust).
	CodeWalletError

	// CodeMiscError indicates a referenced input is already spent
	// elsewhere, or stale errors were carried into a commit.
	CodeMiscError
)

// String returns the RPC-style name of the code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidParameter:
		return "INVALID_PARAMETER"
	case CodeInvalidAddressOrKey:
		return "INVALID_ADDRESS_OR_KEY"
	case CodeWalletError:
		return "WALLET_ERROR"
	case CodeMiscError:
		return "MISC_ERROR"
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Errors accumulates human readable diagnostics while an operation runs.
// Checks append to it and short-circuit, so the first entry always names
// the violation that decided the result code.
type Errors []string

func (e *Errors) add(msg string) {
	*e = append(*e, msg)
}

func (e *Errors) addf(format string, args ...interface{}) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

// Result pairs an outcome code with the diagnostics collected on the way.
// A non-OK result always carries at least one error string. An OK result
// never carries errors, though it may carry warnings (e.g. best-effort
// bookkeeping that failed after a broadcast succeeded).
type Result struct {
	Code     Code
	Errors   []string
	Warnings []string
}

// OK reports whether the result code is CodeOK.
func (r Result) OK() bool {
	return r.Code == CodeOK
}

func resultOK() Result {
	return Result{Code: CodeOK}
}

func resultErr(code Code, errs Errors) Result {
	if len(errs) == 0 {
		// Callers must record a diagnostic before failing; an empty
		// list here is a programming error, not a user condition.
		panic("feebumper: non-OK result without an error message")
	}
	return Result{Code: code, Errors: errs}
}
